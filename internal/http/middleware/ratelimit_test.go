package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newLimitedRouter(rps float64, burst int) http.Handler {
	r := newTestEngine()
	rl := NewRateLimiter(rps, burst)
	r.Use(RequestID(), rl.Handler())
	r.GET("/ping", pong)
	return r
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	r := newLimitedRouter(1, 3)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	r := newLimitedRouter(0.001, 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "rate_limited") {
		t.Fatalf("body %q missing rate_limited code", body)
	}
}

func TestRateLimiterSeparateBucketsPerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if !rl.allow("10.0.0.1") {
		t.Fatal("first client should pass")
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("first client should be throttled")
	}
	if !rl.allow("10.0.0.2") {
		t.Fatal("second client has its own bucket")
	}
}

func TestRateLimiterEvictsStaleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.visitorTTL = time.Millisecond

	rl.allow("10.0.0.1")
	time.Sleep(5 * time.Millisecond)

	rl.mu.Lock()
	rl.evictStale()
	n := len(rl.visitors)
	rl.mu.Unlock()

	if n != 0 {
		t.Fatalf("visitors after eviction = %d, want 0", n)
	}
}
