package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func serveRequestID(header, incoming string) (ctxID string, rec *httptest.ResponseRecorder) {
	h := RequestID(header)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		name := header
		if name == "" {
			name = RequestIDHeader
		}
		r.Header.Set(name, incoming)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return ctxID, rec
}

func TestRequestID_Generated(t *testing.T) {
	id, rec := serveRequestID("", "")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", id, err)
	}
	if rec.Header().Get(RequestIDHeader) != id {
		t.Fatalf("response header = %q, want %q", rec.Header().Get(RequestIDHeader), id)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	id, rec := serveRequestID("", "edge-01:abc.123_x")
	if id != "edge-01:abc.123_x" || rec.Header().Get(RequestIDHeader) != id {
		t.Fatalf("id = %q, header = %q", id, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_UnsafeReplaced(t *testing.T) {
	for _, bad := range []string{
		"has space",
		"line\nbreak",
		`quote"`,
		strings.Repeat("a", maxRequestIDLen+1),
	} {
		id, _ := serveRequestID("", bad)
		if id == bad {
			t.Errorf("unsafe id %q was kept", bad)
		}
	}
}

func TestRequestID_CustomHeader(t *testing.T) {
	id, rec := serveRequestID("X-Correlation-Id", "corr-7")
	if id != "corr-7" || rec.Header().Get("X-Correlation-Id") != "corr-7" {
		t.Fatalf("id = %q", id)
	}
	if rec.Header().Get(RequestIDHeader) != "" {
		t.Fatal("default header should not be set")
	}
}
