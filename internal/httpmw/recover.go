package httpmw

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/xerrors"
)

// Recover turns a panic that escaped the chain runner into a logged error
// and a JSON 500. onPanic runs after logging. http.ErrAbortHandler is
// re-raised so net/http can abort the response as intended.
func Recover(L log.Logger, onPanic func()) Middleware {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				// Recover may sit outside RequestID, whose header is already
				// on the response
				ctx := r.Context()
				reqID := RequestIDFromContext(ctx)
				if reqID == "" {
					reqID = w.Header().Get(RequestIDHeader)
				}
				L.Error(ctx, panicError(v), "panic serving request",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", reqID,
				)
				if onPanic != nil {
					onPanic()
				}

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":      "internal server error",
					"request_id": reqID,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func panicError(v any) error {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", v)
	}
	return xerrors.WithStack(err)
}
