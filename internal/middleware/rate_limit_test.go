package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request over the limit should be refused")
	}

	// A different source has its own window.
	if !rl.Allow("10.0.0.2") {
		t.Error("unrelated key should be allowed")
	}
}

func TestRateLimiterRemaining(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()

	if got := rl.Remaining("10.0.0.1"); got != 3 {
		t.Errorf("remaining %d, want 3", got)
	}
	rl.Allow("10.0.0.1")
	if got := rl.Remaining("10.0.0.1"); got != 2 {
		t.Errorf("remaining %d, want 2", got)
	}
}

func TestLoginRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	handler := LoginRateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Real-IP", "203.0.113.5")
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("limit header %q", rec.Header().Get("X-RateLimit-Limit"))
		}
		// The header counts this request as spent: 1 left after the
		// first, 0 after the second.
		want := strconv.Itoa(1 - i)
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != want {
			t.Errorf("request %d: remaining header %q, want %q", i+1, got, want)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Real-IP", "203.0.113.5")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("reset header missing on refusal")
	}
}
