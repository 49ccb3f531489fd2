package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lendhub/crypto"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"account": {RequestsPerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("account")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesGroupsAndCallers(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"account": {RequestsPerSecond: 1, Burst: 1},
		"admin":   {RequestsPerSecond: 1, Burst: 1},
	}, nil)
	account := limiter.Middleware("account")(okHandler())
	admin := limiter.Middleware("admin")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/borrow", nil)
	for name, h := range map[string]http.Handler{"account": account, "admin": admin} {
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected first request to succeed, got %d", name, res.Code)
		}
	}

	raw := make([]byte, crypto.AddressLength)
	raw[0] = 7
	caller := crypto.NewAddress(crypto.AccountPrefix, raw)
	authed := req.WithContext(WithCaller(req.Context(), caller))
	res := httptest.NewRecorder()
	account.ServeHTTP(res, authed)
	if res.Code != http.StatusOK {
		t.Fatalf("expected a distinct caller to get its own bucket, got %d", res.Code)
	}
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"account": {RequestsPerSecond: 0.001, Burst: 1}}, nil)
	now := time.Unix(0, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("account")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)

	handler.ServeHTTP(httptest.NewRecorder(), req)
	now = now.Add(10 * time.Minute)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected a fresh bucket after the idle window, got %d", res.Code)
	}
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked visitor, got %d", len(limiter.visitors))
	}
}
