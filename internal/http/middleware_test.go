package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	method, path string
	status       int
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeRecorder) RecordHTTPRequest(method, path string, statusCode int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method: method, path: path, status: statusCode})
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var sawLogger bool
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/databases", nil))

	if !sawLogger {
		t.Fatal("expected a request logger in the handler context")
	}
	out := buf.String()
	for _, want := range []string{"request started", "request completed", "request_id=1", "status=418", "path=/databases"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestRequestMetrics(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{}
	handler := RequestMetrics(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/storage") {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/databases", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/databases/remote/storage", nil))

	want := []recordedRequest{
		{method: http.MethodGet, path: "/databases", status: http.StatusOK},
		{method: http.MethodDelete, path: "/databases/{name}/storage", status: http.StatusConflict},
	}
	if len(recorder.requests) != len(want) {
		t.Fatalf("expected %d observations, got %d", len(want), len(recorder.requests))
	}
	for i := range want {
		if recorder.requests[i] != want[i] {
			t.Fatalf("observation %d: expected %+v, got %+v", i, want[i], recorder.requests[i])
		}
	}

	rec := httptest.NewRecorder()
	RequestMetrics(nil)(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/databases", nil))
	if rec.Code != http.StatusOK || len(recorder.requests) != len(want) {
		t.Fatal("a nil recorder must pass requests through unobserved")
	}
}

func TestRouteLabel(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/databases":                     "/databases",
		"/metrics":                       "/metrics",
		"/databases/client/query":        "/databases/{name}/query",
		"/databases/client/tables/users": "/databases/{name}/tables/{table}",
		"/databases/client/reinitialize": "/databases/{name}/reinitialize",
		"/databases/":                    "/databases/",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
