package httpmw

import (
	"net/http"
	"slices"
)

type Middleware = func(http.Handler) http.Handler

// Chain wraps h so mws run in the order given. Nil entries are skipped,
// which lets callers list optional middleware inline.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for _, mw := range slices.Backward(mws) {
		if mw != nil {
			h = mw(h)
		}
	}
	return h
}
