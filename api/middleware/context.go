package middleware

import (
	"context"

	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
)

type contextKey string

const ctxCart contextKey = "cart"

// WithCart injects the session's coordinator for downstream handlers.
func WithCart(ctx context.Context, cart *coordinator.Coordinator) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCart, cart)
}

func CartFromContext(ctx context.Context) *coordinator.Coordinator {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxCart).(*coordinator.Coordinator); ok {
		return v
	}
	return nil
}
