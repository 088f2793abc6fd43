package httpchain

import (
	"net/http"
	"net/url"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Chains created by the core HTTP module.
const (
	EntryChain     chain.Name = "http.entry"
	RoutingChain   chain.Name = "http.routing"
	NotFoundChain  chain.Name = "http.not-found"
	ExceptionChain chain.Name = "http.exception"
	RespondChain   chain.Name = "http.respond"
	// FailedChain answers when http.exception or http.respond itself fails.
	FailedChain chain.Name = "http.failed"
)

// Request keys, written by NewRequest.
var (
	RequestKey        = metadata.NewKey[*http.Request]("http.request")
	MethodKey         = metadata.NewKey[string]("http.method")
	PathKey           = metadata.NewKey[string]("http.path")
	QueryKey          = metadata.NewKey[url.Values]("http.query")
	HostKey           = metadata.NewKey[string]("http.host")
	RequestHeadersKey = metadata.NewKey[http.Header]("http.request_headers")
	ClientIPKey       = metadata.NewKey[string]("http.client_ip")
	RequestIDKey      = metadata.NewKey[string]("http.request_id")
)

// Response keys, read by Handler.
var (
	StatusKey          = metadata.NewKey[int]("http.status")
	ResponseHeadersKey = metadata.NewKey[http.Header]("http.response_headers")
	// ResponseBodyKey holds a value for a marshalling module to encode.
	ResponseBodyKey = metadata.NewKey[any]("http.response_body")
	// ResponseBytesKey holds the encoded body written to the client.
	ResponseBytesKey = metadata.NewKey[[]byte]("http.response_bytes")
)
