package httpchain

import (
	"net/http"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpmw"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Handler serves HTTP requests by running them through a registry.
type Handler struct {
	reg   *chain.Registry
	entry chain.Name
}

// NewHandler returns a handler starting every request at entry.
func NewHandler(reg *chain.Registry, entry chain.Name) *Handler {
	if entry == "" {
		entry = EntryChain
	}
	return &Handler{reg: reg, entry: entry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)

	md, res, err := h.reg.Handle(ctx, h.entry, NewRequest(r))
	if err != nil {
		// nothing the graph could absorb, the request gets a bare 500
		L.Error(ctx, err, "chain run failed",
			"entry", h.entry,
			"path", res.Path,
		)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	httpmw.SetRoute(ctx, routeLabel(res.Path))
	L.Debug(ctx, "chain run finished",
		"outcome", res.Outcome.String(),
		"chain", res.Chain,
		"path", res.Path,
	)

	if res.Outcome == chain.Dropped {
		return
	}
	writeResponse(w, md)
}

// routeLabel names the chain http.routing jumped to. When routing was never
// reached it is the last chain entered before exception handling and the
// response.
func routeLabel(path []chain.Name) string {
	for i, c := range path {
		if c == RoutingChain && i+1 < len(path) {
			return string(path[i+1])
		}
	}
	for i := len(path) - 1; i >= 0; i-- {
		if c := path[i]; c != RespondChain && c != ExceptionChain && c != FailedChain {
			return string(path[i])
		}
	}
	return ""
}

func writeResponse(w http.ResponseWriter, md *metadata.MetaData) {
	if hdr, ok := metadata.Lookup(md, ResponseHeadersKey); ok {
		dst := w.Header()
		for k, vs := range hdr {
			dst[k] = append([]string(nil), vs...)
		}
	}

	status, ok := metadata.Lookup(md, StatusKey)
	if !ok || status < 100 || status > 999 {
		status = http.StatusOK
	}
	body, _ := metadata.Lookup(md, ResponseBytesKey)
	w.WriteHeader(status)
	if len(body) > 0 {
		w.Write(body)
	}
}
