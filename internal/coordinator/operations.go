package coordinator

import (
	"context"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/analytics"
	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/validation"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

// ValidateCart re-checks every line against the catalog. Unavailable lines
// are removed, stale ones refreshed; transient failures only show up in the
// report.
func (c *Coordinator) ValidateCart(ctx context.Context) validation.Report {
	started := time.Now()
	c.InitializeCart(ctx)
	c.touch()
	ctx = c.logCtx(ctx)

	report := c.validate(ctx, c.core.Items())
	c.metrics.Observe("validate_cart", started, nil)
	return report
}

// ValidateCartWithRetry repeats validation for transiently failed lines up
// to maxRetries times, waiting base*(attempt+1) between passes.
func (c *Coordinator) ValidateCartWithRetry(ctx context.Context, maxRetries int) (validation.Report, error) {
	started := time.Now()
	c.InitializeCart(ctx)
	c.touch()
	ctx = c.logCtx(ctx)

	report := c.validate(ctx, c.core.Items())
	for attempt := 0; attempt < maxRetries && report.HasTransient(); attempt++ {
		timer := time.NewTimer(c.opts.RetryBackoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			c.metrics.Observe("validate_cart", started, ctx.Err())
			return report, ctx.Err()
		case <-timer.C:
		}

		var retry []cart.Item
		for _, res := range report.Results {
			if res.Outcome != validation.OutcomeTransient {
				continue
			}
			if item, ok := c.core.Item(res.ItemID); ok {
				retry = append(retry, item)
			}
		}
		if len(retry) == 0 {
			break
		}
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{"attempt": attempt + 1, "items": len(retry)}), "cart.validation.retrying")
		report = report.Supersede(c.validate(ctx, retry))
	}
	c.metrics.Observe("validate_cart", started, nil)
	return report, nil
}

func (c *Coordinator) validate(ctx context.Context, items []cart.Item) validation.Report {
	if c.validator == nil || len(items) == 0 {
		return validation.Report{Results: []validation.ItemResult{}}
	}
	report := c.validator.ValidateCart(ctx, items, c.validationCallbacks())

	if report.Changed() {
		snap := c.core.Snapshot()
		c.advanced.Retain(snap.Items)
		c.reconcile(ctx, "validate_cart", c.persist(ctx, snap))
	}
	var results []Result
	for _, res := range report.Results {
		if res.Outcome == validation.OutcomeTransient {
			results = append(results, Result{Module: ModuleValidation, Err: res.Err})
		}
	}
	c.reconcile(ctx, "validate_cart", results...)
	if !report.HasTransient() {
		now := c.opts.Now()
		c.mu.Lock()
		c.lastSyncAt = &now
		c.mu.Unlock()
	}
	return report
}

// validationCallbacks apply verdicts straight to the core. They bypass the
// checkout lock since they only ever shrink or correct the cart.
func (c *Coordinator) validationCallbacks() validation.Callbacks {
	return validation.Callbacks{
		Remove: func(ctx context.Context, item cart.Item, reason string) error {
			snap, err := c.core.RefreshItem(item.ID, item.Product, 0)
			if pkgerrors.HasCode(err, pkgerrors.CodeItemMissing) {
				return nil
			}
			if err != nil {
				return err
			}
			c.advanced.DeselectItem(item.ID)
			c.tracker.TrackRemoveFromCart(item.Product, item.Quantity, analytics.TotalsFrom(snap))
			c.logg.Info(c.logg.WithFields(ctx, map[string]any{"item_id": item.ID, "reason": reason}), "cart.validation.item_removed")
			return nil
		},
		Refresh: func(ctx context.Context, item cart.Item, product cart.Product, quantity int) error {
			_, err := c.core.RefreshItem(item.ID, product, quantity)
			if pkgerrors.HasCode(err, pkgerrors.CodeItemMissing) {
				return nil
			}
			return err
		},
	}
}

// ForceSave writes the current cart immediately, bypassing the debounce.
func (c *Coordinator) ForceSave(ctx context.Context) error {
	started := time.Now()
	ctx = c.logCtx(ctx)
	err := c.store.SaveNow(ctx, c.persistState(c.core.Snapshot()))
	if err != nil {
		c.reconcile(ctx, "force_save", Result{Module: ModulePersistence, Err: err})
	}
	c.metrics.Observe("force_save", started, err)
	return err
}

// RecoverCart reloads the cart from storage, wiping unreadable payloads.
func (c *Coordinator) RecoverCart(ctx context.Context) State {
	started := time.Now()
	ctx = c.logCtx(ctx)
	c.loading.Store(true)
	defer c.loading.Store(false)

	result, err := c.store.Recover(ctx)
	if err != nil {
		c.reconcile(ctx, "recover_cart", Result{Module: ModulePersistence, Err: err})
		c.metrics.Observe("recover_cart", started, err)
		return c.State()
	}
	snap := c.core.Replace(cart.Snapshot{Items: result.State.Items, SessionID: result.State.SessionID})
	c.advanced.Retain(snap.Items)
	c.mu.Lock()
	c.lastSyncAt = result.State.LastSyncAt
	c.mu.Unlock()
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"item_count": snap.ItemCount(),
		"corrupt":    result.Corrupt,
		"dropped":    result.Dropped,
	}), "cart.recovered")
	c.metrics.Observe("recover_cart", started, nil)
	return c.State()
}

// LockCart holds the cart for holder, defaulting to the cart's own session.
func (c *Coordinator) LockCart(ctx context.Context, holder string) (cart.LockStatus, error) {
	c.InitializeCart(ctx)
	if holder == "" {
		holder = c.core.SessionID()
	}
	status, err := c.core.Lock(holder, c.opts.LockTTL)
	if err == nil {
		c.logg.Info(c.logg.WithField(c.logCtx(ctx), "locked_by", holder), "cart.locked")
	}
	return status, err
}

func (c *Coordinator) UnlockCart(ctx context.Context, holder string) error {
	if holder == "" {
		holder = c.core.SessionID()
	}
	if err := c.core.Unlock(holder); err != nil {
		return err
	}
	c.logg.Info(c.logCtx(ctx), "cart.unlocked")
	return nil
}

func (c *Coordinator) LockStatus() cart.LockStatus {
	return c.core.LockStatus()
}

func (c *Coordinator) TrackCartView(ctx context.Context) State {
	c.InitializeCart(ctx)
	c.touch()
	c.tracker.TrackCartView(analytics.TotalsFrom(c.core.Snapshot()))
	return c.State()
}

// StartCheckout locks the cart for its own session, writes it through and
// records checkout_start.
func (c *Coordinator) StartCheckout(ctx context.Context) (state State, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe("start_checkout", started, err) }()

	c.InitializeCart(ctx)
	c.touch()
	ctx = c.logCtx(ctx)
	if c.core.IsEmpty() {
		return c.State(), pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if _, err := c.core.Lock(c.core.SessionID(), c.opts.LockTTL); err != nil {
		return c.State(), err
	}
	snap := c.core.Snapshot()
	c.tracker.TrackCheckoutStart(analytics.TotalsFrom(snap))
	// ForceSave records its own failure; checkout proceeds on the lock.
	c.ForceSave(ctx)
	if _, flushErr := c.tracker.Flush(ctx); flushErr != nil {
		c.reconcile(ctx, "start_checkout", Result{Module: ModuleAnalytics, Err: flushErr})
	}
	c.logg.Info(c.logg.WithField(ctx, "item_count", snap.ItemCount()), "cart.checkout.started")
	return c.State(), nil
}
