package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// SessionHeader carries the cart session id on every cart request.
const SessionHeader = "X-Cart-Session"

type cartRegistry interface {
	Get(ctx context.Context, sessionID string) (*coordinator.Coordinator, error)
}

// CartSession resolves X-Cart-Session to its coordinator and records the
// caller's client metadata for security checks.
func CartSession(registry cartRegistry, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
			if sessionID == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, SessionHeader+" header is required"))
				return
			}
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}

			cart, err := registry.Get(ctx, sessionID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = coordinator.WithClient(ctx, coordinator.Client{
				UserAgent: r.UserAgent(),
				IPAddress: clientIP(r),
			})
			ctx = WithCart(ctx, cart)

			w.Header().Set(SessionHeader, cart.SessionID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
