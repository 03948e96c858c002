package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-cart/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// RateLimitStore counts requests in fixed windows.
type RateLimitStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// RateLimitPolicy defines the throttling parameters for a traffic surface.
type RateLimitPolicy struct {
	name         string
	window       time.Duration
	ipLimit      int
	sessionLimit int
}

// NewRateLimitPolicy builds a policy with the supplied window and limits.
// A zero limit disables that counter.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, sessionLimit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:         strings.ToLower(strings.TrimSpace(name)),
		window:       window,
		ipLimit:      ipLimit,
		sessionLimit: sessionLimit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.sessionLimit > 0)
}

func (p RateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "cart"
	}
	return p.name
}

func (p RateLimitPolicy) key(scope, value string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf("rl:%s:%s:%s", scope, p.normalizedName(), value)
}

// RateLimit enforces per-IP and per-session counters. The session counter
// keys on the X-Cart-Session header, so it runs before the session lookup.
func RateLimit(policy RateLimitPolicy, store RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			checks := []struct {
				scope string
				value string
				limit int
			}{
				{"ip", clientIP(r), policy.ipLimit},
				{"session", strings.TrimSpace(r.Header.Get(SessionHeader)), policy.sessionLimit},
			}
			for _, check := range checks {
				if check.limit <= 0 {
					continue
				}
				key := policy.key(check.scope, check.value)
				if key == "" {
					continue
				}
				allowed, count, err := allow(ctx, store, key, policy.window, int64(check.limit))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					respondRateLimited(ctx, logg, w, policy, check.scope, check.value, count, check.limit)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, store RateLimitStore, key string, window time.Duration, limit int64) (bool, int64, error) {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, scope, value string, count int64, limit int) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"subject":        value,
			"policy":         policy.normalizedName(),
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		})
		logg.Warn(logCtx, "cart.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(policy.window.Seconds())))
	err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded")
	responses.WriteError(ctx, nil, w, err)
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
