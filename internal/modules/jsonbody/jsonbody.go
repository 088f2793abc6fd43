// Package jsonbody is the JSON marshalling module. It decodes JSON request
// bodies on http.routing and encodes the response body value on
// http.respond.
//
// Decoding waits for http.routing so every http.entry rule, the rate
// limiter's included, has had its chance to divert the request before the
// body is read. Route conditions still see the decoded body.
package jsonbody

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpchain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// RequestBodyKey holds the decoded request body.
var RequestBodyKey = metadata.NewKey[any]("jsonbody.request_body")

// ExtensionPrefix prefixes the extension entries created from the top level
// fields of an object body.
const ExtensionPrefix = "body."

const contentType = "application/json; charset=utf-8"

type Module struct {
	indent bool
}

type Option func(*Module)

// WithIndent pretty prints responses.
func WithIndent(v bool) Option {
	return func(m *Module) { m.indent = v }
}

func New(opts ...Option) *Module {
	m := &Module{}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Module) Register(ext *chain.Extender) error {
	if err := ext.PrependProcessor(httpchain.RoutingChain, chain.NamedFunc("decode-json", decode)); err != nil {
		return err
	}
	return ext.AppendProcessor(httpchain.RespondChain, chain.NamedFunc("encode-json", m.encode))
}

func isJSON(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && (mt == "application/json" || mt == "application/problem+json")
}

func decode(_ context.Context, md *metadata.MetaData) error {
	r, ok := metadata.Lookup(md, httpchain.RequestKey)
	if !ok || r.Body == nil || r.Body == http.NoBody || !isJSON(r.Header.Get("Content-Type")) {
		return nil
	}

	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return httpchain.WrapError(err, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			return nil
		default:
			return httpchain.WrapError(err, http.StatusBadRequest, "invalid JSON body")
		}
	}

	metadata.Set(md, RequestBodyKey, body)
	if obj, ok := body.(map[string]any); ok {
		for k, v := range obj {
			md.SetUnchecked(ExtensionPrefix+k, v)
		}
	}
	return nil
}

func (m *Module) encode(_ context.Context, md *metadata.MetaData) error {
	if md.Contains(httpchain.ResponseBytesKey) {
		return nil
	}
	body, ok := metadata.Lookup(md, httpchain.ResponseBodyKey)
	if !ok || body == nil {
		return nil
	}

	var (
		b   []byte
		err error
	)
	if m.indent {
		b, err = json.MarshalIndent(body, "", "  ")
	} else {
		b, err = json.Marshal(body)
	}
	if err != nil {
		return err
	}

	hdr := httpchain.ResponseHeaders(md)
	if hdr.Get("Content-Type") == "" {
		hdr.Set("Content-Type", contentType)
	}
	metadata.Set(md, httpchain.ResponseBytesKey, b)
	return nil
}
