package opshttp

import (
	"net/http"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/graph"
)

// ChainsHandler serves the chain graph as DOT, or as JSON with ?format=json.
// Exception edges are included unless ?exceptions=false.
func ChainsHandler(src func() *chain.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg *chain.Registry
		if src != nil {
			reg = src()
		}
		if reg == nil {
			http.Error(w, "chain registry not built\n", http.StatusServiceUnavailable)
			return
		}

		q := r.URL.Query()
		g := graph.Export(reg, graph.Options{IncludeExceptions: q.Get("exceptions") != "false"})

		switch q.Get("format") {
		case "", "dot":
			w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
			_, _ = w.Write([]byte(g.DOT()))
		case "json":
			b, err := g.JSON()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write(b)
		default:
			http.Error(w, "format must be dot or json\n", http.StatusBadRequest)
		}
	}
}
