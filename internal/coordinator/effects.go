package coordinator

import (
	"context"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/persistence"
)

// Module names a secondary module whose failure is absorbed.
type Module string

const (
	ModulePersistence Module = "persistence"
	ModuleAnalytics   Module = "analytics"
	ModuleValidation  Module = "validation"
	ModuleSecurity    Module = "security"
	ModuleAdvanced    Module = "advanced"
)

// Result is the outcome of one side effect.
type Result struct {
	Module Module
	Err    error
}

// reconcile logs and counts failed side effects. The last non-security
// failure becomes the cart's error field; security failures stay inside
// the guard's own error list.
func (c *Coordinator) reconcile(ctx context.Context, operation string, results ...Result) {
	for _, res := range results {
		if res.Err == nil {
			continue
		}
		c.metrics.IncSideEffectFailure(string(res.Module))
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"module":    string(res.Module),
			"operation": operation,
		})
		c.logg.Warn(c.logg.WithError(logCtx, res.Err), "cart.effect.failed")
		if res.Module == ModuleSecurity {
			continue
		}
		c.mu.Lock()
		c.lastErr = res.Err.Error()
		c.mu.Unlock()
	}
}

func (c *Coordinator) clearError() {
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()
}

// persist schedules a debounced write of snap. The write itself reports
// failures through the scheduler's error hook. A closed cart has no timer
// left, so it writes through.
func (c *Coordinator) persist(ctx context.Context, snap cart.Snapshot) Result {
	state := c.persistState(snap)
	if c.store.ScheduleSave(state) {
		return Result{Module: ModulePersistence}
	}
	return Result{Module: ModulePersistence, Err: c.store.SaveNow(ctx, state)}
}

func (c *Coordinator) persistState(snap cart.Snapshot) persistence.State {
	c.mu.RLock()
	lastSync := c.lastSyncAt
	c.mu.RUnlock()
	return persistence.State{Items: snap.Items, SessionID: snap.SessionID, LastSyncAt: lastSync}
}

func (c *Coordinator) warm(ctx context.Context, product cart.Product) Result {
	if c.validator == nil {
		return Result{Module: ModuleValidation}
	}
	return Result{Module: ModuleValidation, Err: c.validator.Warm(ctx, product)}
}
