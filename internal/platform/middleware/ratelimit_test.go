package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
)

func serveLimited(h echo.HandlerFunc, userID string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	return rec, h(c)
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRateLimit_WithinBurst(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		rec, err := serveLimited(h, "")
		if err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected limit header 10, got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsBurst(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	if _, err := serveLimited(h, ""); err != nil {
		t.Fatalf("first request: %v", err)
	}
	rec, err := serveLimited(h, "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if v, _ := strconv.Atoi(rec.Header().Get("Retry-After")); v < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining 0")
	}
}

func TestRateLimit_BucketPerUser(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	if _, err := serveLimited(h, "nurse-a"); err != nil {
		t.Fatalf("nurse-a first request: %v", err)
	}
	if _, err := serveLimited(h, "nurse-a"); err == nil {
		t.Fatal("nurse-a second request: expected rate limit error")
	}
	if _, err := serveLimited(h, "nurse-b"); err != nil {
		t.Fatalf("nurse-b first request: %v", err)
	}
}

func TestRateLimit_DisabledWithZeroRate(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler)
	for i := 0; i < 50; i++ {
		if _, err := serveLimited(h, ""); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
}

func TestRateLimit_FractionalRate(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.5})(okHandler)

	rec, err := serveLimited(h, "")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "0.5" {
		t.Errorf("expected limit header 0.5, got %q", got)
	}
	rec, err = serveLimited(h, "")
	if err == nil {
		t.Fatal("expected second request to be limited")
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
}
