package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"consorcia.org/internal/ids"
	"consorcia.org/internal/obs"
	"consorcia.org/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitExceeded(t *testing.T) {
	quietLogs(t)
	handler := RequestID(RateLimit(okHandler(), ratelimit.NewLocal(1, 1)))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(context.Background()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first call 200, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(context.Background()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	var body map[string]any
	if err := json.Unmarshal(rr2.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rate limit body: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("expected error message in body")
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatalf("expected request_id in body")
	}

	// Another client has its own bucket.
	other := req.Clone(context.Background())
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	if rr3.Code != http.StatusOK {
		t.Fatalf("expected separate bucket per client, got %d", rr3.Code)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return true, 0, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	quietLogs(t)
	handler := RateLimit(okHandler(), brokenLimiter{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected limiter errors to let requests through, got %d", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
	}))

	incoming := ids.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, incoming)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != incoming || rr.Header().Get(requestIDHeader) != incoming {
		t.Fatalf("expected incoming id %s to be kept, got %s", incoming, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "<script>")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get(requestIDHeader); got == "<script>" || !ids.Valid(got) {
		t.Fatalf("expected a minted id, got %q", got)
	}
}

func TestLoggingJSONEmitsStructuredEntry(t *testing.T) {
	logger := obs.Logger()
	origWriter := logger.Out

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(origWriter)

	handler := RequestID(LoggingJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.RemoteAddr = "127.0.0.1:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.Clone(context.Background()))

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "request_id", "method", "path", "status", "duration_ms", "remote_ip"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if entry["msg"] != "http request" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", entry["status"])
	}
	if entry["level"] != "warning" {
		t.Fatalf("4xx responses log at warning, got %v", entry["level"])
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(CORS(okHandler()))

	req := httptest.NewRequest(http.MethodOptions, "/v1/consortiums", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("expected local origin to be echoed")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origins must not be allowed")
	}
}
