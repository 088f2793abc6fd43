package httpmw

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecover_Panic(t *testing.T) {
	L, buf := jsonLogger(t)
	panics := 0
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("processor blew up")
	}), RequestID(""), Recover(L, func() { panics++ }))

	r := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.Header.Set(RequestIDHeader, "req-9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["request_id"] != "req-9" || body["error"] != "internal server error" {
		t.Fatalf("body = %v", body)
	}
	if panics != 1 {
		t.Fatalf("onPanic called %d times", panics)
	}

	recs := logRecords(t, buf)
	if len(recs) != 1 {
		t.Fatalf("got %d log records", len(recs))
	}
	rec0 := recs[0]
	if rec0["url.path"] != "/boom" || rec0["request_id"] != "req-9" {
		t.Fatalf("log record = %v", rec0)
	}
	if !strings.Contains(rec0["err"].(string), "processor blew up") {
		t.Fatalf("err = %v", rec0["err"])
	}
	if stack, _ := rec0["stack"].(string); !strings.Contains(stack, "TestRecover_Panic") {
		t.Fatalf("stack does not reach the panicking handler:\n%s", stack)
	}
}

func TestRecover_ErrorValue(t *testing.T) {
	L, buf := jsonLogger(t)
	h := Recover(L, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("typed"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := logRecords(t, buf)[0]["err"]; got != "typed" {
		t.Fatalf("err = %v", got)
	}
}

func TestRecover_AbortHandlerRepanics(t *testing.T) {
	h := Recover(nil, func() { t.Fatal("onPanic should not run") })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRecover_NoPanic(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
}
