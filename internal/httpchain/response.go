package httpchain

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Error is a processor failure that carries the status the client should
// see. Its message is always safe to expose.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf returns an *Error with a formatted client message.
func Errorf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a client status and message to err.
func WrapError(err error, status int, msg string) *Error {
	return &Error{Status: status, Message: msg, Err: err}
}

// AsError finds an *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// ResponseHeaders returns the mutable response header set, creating it when
// the metadata was not seeded by NewRequest.
func ResponseHeaders(md *metadata.MetaData) http.Header {
	return metadata.GetOrSetDefault(md, ResponseHeadersKey, func() http.Header { return http.Header{} })
}

// Respond sets status and a body value for the marshalling module.
func Respond(md *metadata.MetaData, status int, body any) {
	metadata.Set(md, StatusKey, status)
	metadata.Set(md, ResponseBodyKey, body)
	md.Delete(ResponseBytesKey)
}

// RespondBytes sets status and an already encoded body.
func RespondBytes(md *metadata.MetaData, status int, contentType string, body []byte) {
	metadata.Set(md, StatusKey, status)
	metadata.Set(md, ResponseBytesKey, body)
	md.Delete(ResponseBodyKey)
	if contentType != "" {
		ResponseHeaders(md).Set("Content-Type", contentType)
	}
}

// ErrorBody is the JSON shape of error responses.
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
