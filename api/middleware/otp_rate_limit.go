package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agrichain/agrichain-backend/api/responses"
	pkgerrors "github.com/agrichain/agrichain-backend/pkg/errors"
	"github.com/agrichain/agrichain-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// OTPRateLimitPolicy throttles confirmation attempts. The per-order limit is
// the brute-force bound on a 6-digit code; the per-IP limit caps scanning
// across orders.
type OTPRateLimitPolicy struct {
	Window     time.Duration
	OrderLimit int
	IPLimit    int
}

func (p OTPRateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.OrderLimit > 0 || p.IPLimit > 0)
}

// OTPRateLimit enforces the policy on the verify endpoint. The order id
// comes from the route; requests without one pass through to the handler's
// own validation.
func OTPRateLimit(policy OTPRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.IPLimit > 0 {
				ip := clientIP(r)
				if ip != "" {
					scope := fmt.Sprintf("otp:ip:%s", ip)
					if blocked := enforce(ctx, logg, w, store, scope, policy.Window, policy.IPLimit, "ip"); blocked {
						return
					}
				}
			}

			if policy.OrderLimit > 0 {
				orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
				if orderID != "" {
					scope := fmt.Sprintf("otp:order:%s", orderID)
					if blocked := enforce(ctx, logg, w, store, scope, policy.Window, policy.OrderLimit, "order"); blocked {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func enforce(
	ctx context.Context,
	logg *logger.Logger,
	w http.ResponseWriter,
	store rateLimiterStore,
	scopeKey string,
	window time.Duration,
	limit int,
	scope string,
) bool {
	allowed, count, err := store.FixedWindowAllow(ctx, scopeKey, int64(limit), window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return true
	}
	if allowed {
		return false
	}
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(window.Seconds()),
		})
		logg.Warn(logCtx, "otp.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many confirmation attempts"))
	return true
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
