package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type memoryLimiter struct {
	counts map[string]int64
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{counts: map[string]int64{}}
}

func (m *memoryLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func newRateLimitedRouter(policy OTPRateLimitPolicy, store rateLimiterStore) http.Handler {
	r := chi.NewRouter()
	r.With(OTPRateLimit(policy, store, nil)).Post("/orders/{orderId}/verify-otp", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestOTPRateLimitPerOrder(t *testing.T) {
	router := newRateLimitedRouter(OTPRateLimitPolicy{Window: time.Minute, OrderLimit: 3}, newMemoryLimiter())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ord-1/verify-otp", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ord-1/verify-otp", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different order has its own budget.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ord-2/verify-otp", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOTPRateLimitPerIP(t *testing.T) {
	router := newRateLimitedRouter(OTPRateLimitPolicy{Window: time.Minute, IPLimit: 2}, newMemoryLimiter())

	request := func(ip string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/orders/ord-1/verify-otp", nil)
		req.Header.Set("X-Forwarded-For", ip)
		return req
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, request("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, request("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, request("10.0.0.2"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOTPRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	router := newRateLimitedRouter(OTPRateLimitPolicy{}, newMemoryLimiter())

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ord-1/verify-otp", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
