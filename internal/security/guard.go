package security

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const (
	DefaultMaxQuantity       = 100
	DefaultMaxCartValue      = 10000
	DefaultMaxProductPrice   = 1000
	DefaultMaxSecurityErrors = 5

	maxRequestAge = 5 * time.Minute
)

// RequestContext describes who is asking for a mutation.
type RequestContext struct {
	SessionID string
	UserAgent string
	IPAddress string
	Timestamp time.Time
}

type Options struct {
	Disabled          bool
	MaxQuantity       int
	MaxCartValue      float64
	MaxProductPrice   float64
	MaxSecurityErrors int
	// Velocity is optional; without it no rate check runs.
	Velocity VelocityLimiter
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxQuantity <= 0 {
		o.MaxQuantity = DefaultMaxQuantity
	}
	if o.MaxCartValue <= 0 {
		o.MaxCartValue = DefaultMaxCartValue
	}
	if o.MaxProductPrice <= 0 {
		o.MaxProductPrice = DefaultMaxProductPrice
	}
	if o.MaxSecurityErrors <= 0 {
		o.MaxSecurityErrors = DefaultMaxSecurityErrors
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Guard runs advisory checks around cart mutations. It never blocks a
// mutation itself; callers decide what to do with a Verdict.
type Guard struct {
	opts Options
	logg *logger.Logger

	mu        sync.RWMutex
	enabled   bool
	risk      enums.RiskLevel
	errors    []string
	lastCheck time.Time
}

func NewGuard(opts Options, logg *logger.Logger) *Guard {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Guard{
		opts:    opts.withDefaults(),
		logg:    logg,
		enabled: !opts.Disabled,
		risk:    enums.RiskLevelLow,
	}
}

func (g *Guard) now() time.Time {
	return g.opts.Now()
}

func (g *Guard) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

func (g *Guard) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// RiskLevel only ever rises until Reset.
func (g *Guard) RiskLevel() enums.RiskLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.risk
}

// Errors returns the most recent security errors, oldest first.
func (g *Guard) Errors() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.errors...)
}

func (g *Guard) LastCheck() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastCheck
}

// Reset clears recorded errors and drops the risk back to low.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errors = nil
	g.risk = enums.RiskLevelLow
}

// RecordError keeps msg in the bounded error list and bumps the risk one level.
func (g *Guard) RecordError(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recordErrorLocked(msg)
}

func (g *Guard) recordErrorLocked(msg string) {
	g.errors = append(g.errors, msg)
	if over := len(g.errors) - g.opts.MaxSecurityErrors; over > 0 {
		g.errors = append([]string(nil), g.errors[over:]...)
	}
	switch g.risk {
	case enums.RiskLevelLow:
		g.risk = enums.RiskLevelMedium
	default:
		g.risk = enums.RiskLevelHigh
	}
}

// SecureAddItem checks an add of quantity units of product to a cart
// currently worth cartValue.
func (g *Guard) SecureAddItem(ctx context.Context, rc RequestContext, product cart.Product, quantity int, cartValue decimal.Decimal) (Verdict, error) {
	if !g.Enabled() {
		return newVerdict(), nil
	}
	v := g.checkContext(rc)
	v.merge(g.ValidateProduct(product))
	g.checkQuantity(&v, quantity, false)

	projected := cartValue.Add(decimal.NewFromFloat(product.Price).Mul(decimal.NewFromInt(int64(quantity))))
	if projected.GreaterThan(decimal.NewFromFloat(g.opts.MaxCartValue)) {
		v.fail("cart value limit exceeded", enums.RiskLevelMedium)
	}
	if err := g.checkVelocity(ctx, &v, rc.SessionID); err != nil {
		return v, err
	}
	return g.conclude(ctx, "add_item", v), nil
}

func (g *Guard) SecureUpdateQuantity(ctx context.Context, rc RequestContext, itemID string, quantity int) (Verdict, error) {
	if !g.Enabled() {
		return newVerdict(), nil
	}
	v := g.checkContext(rc)
	if strings.TrimSpace(itemID) == "" {
		v.fail("invalid item id", enums.RiskLevelHigh)
	}
	g.checkQuantity(&v, quantity, true)
	if err := g.checkVelocity(ctx, &v, rc.SessionID); err != nil {
		return v, err
	}
	return g.conclude(ctx, "update_quantity", v), nil
}

func (g *Guard) SecureRemoveItem(ctx context.Context, rc RequestContext, itemID string) (Verdict, error) {
	if !g.Enabled() {
		return newVerdict(), nil
	}
	v := g.checkContext(rc)
	if strings.TrimSpace(itemID) == "" {
		v.fail("invalid item id", enums.RiskLevelHigh)
	}
	return g.conclude(ctx, "remove_item", v), nil
}

func (g *Guard) checkVelocity(ctx context.Context, v *Verdict, sessionID string) error {
	if g.opts.Velocity == nil {
		return nil
	}
	allowed, err := g.opts.Velocity.Allow(ctx, sessionID)
	if err != nil {
		g.RecordError("velocity check unavailable")
		return pkgerrors.Wrap(pkgerrors.CodeSecurityCheck, err, "velocity check failed")
	}
	if !allowed {
		v.warn("high frequency of operations detected", enums.RiskLevelMedium)
	}
	return nil
}

func (g *Guard) conclude(ctx context.Context, operation string, v Verdict) Verdict {
	g.mu.Lock()
	g.lastCheck = g.now()
	g.risk = g.risk.Max(v.Risk)
	for _, msg := range v.Errors {
		g.recordErrorLocked(msg)
	}
	g.mu.Unlock()

	if !v.Allowed || len(v.Warnings) > 0 {
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{
			"operation": operation,
			"risk":      v.Risk,
			"errors":    v.Errors,
			"warnings":  v.Warnings,
		}), "cart.security.flagged")
	}
	return v
}
