package httpchain

import (
	"net/http"

	"github.com/keithlinneman/reqchain/internal/httpmw"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Request is the chain.Source for one inbound HTTP request.
type Request struct {
	r *http.Request
}

func NewRequest(r *http.Request) Request { return Request{r: r} }

// Enter seeds md from the request. Client address and request id come from
// the httpmw middleware that ran before the handler.
func (req Request) Enter(md *metadata.MetaData) {
	r := req.r
	ctx := r.Context()

	metadata.Set(md, RequestKey, r)
	metadata.Set(md, MethodKey, r.Method)
	metadata.Set(md, PathKey, r.URL.Path)
	metadata.Set(md, QueryKey, r.URL.Query())
	metadata.Set(md, HostKey, r.Host)
	metadata.Set(md, RequestHeadersKey, r.Header)
	if ip := httpmw.ClientIPFromContext(ctx); ip != "" {
		metadata.Set(md, ClientIPKey, ip)
	}
	if id := httpmw.RequestIDFromContext(ctx); id != "" {
		metadata.Set(md, RequestIDKey, id)
	}
	metadata.Set(md, ResponseHeadersKey, http.Header{})
}
