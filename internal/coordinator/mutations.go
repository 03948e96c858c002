package coordinator

import (
	"context"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/analytics"
	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/security"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
)

func (c *Coordinator) AddItem(ctx context.Context, product cart.Product, quantity int) (State, error) {
	return c.AddItemFrom(ctx, product, quantity, enums.ItemSourceManual)
}

// AddItemFrom adds quantity of product, tagging a new line with source.
func (c *Coordinator) AddItemFrom(ctx context.Context, product cart.Product, quantity int, source enums.ItemSource) (state State, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe("add_item", started, err) }()

	c.InitializeCart(ctx)
	c.touch()
	ctx = c.logg.WithProductID(c.logCtx(ctx), product.ID)

	secured := c.secure(ctx, func(rc security.RequestContext) (security.Verdict, error) {
		return c.guard.SecureAddItem(ctx, rc, product, quantity, c.core.Subtotal())
	})

	snap, err := c.core.AddItem(product, quantity, source)
	if err != nil {
		c.logg.Info(c.logg.WithError(ctx, err), "cart.item.add_rejected")
		return c.State(), err
	}
	c.clearError()

	line, _ := c.core.ItemByProductID(product.ID)
	c.tracker.TrackAddToCart(line.Product, quantity, analytics.TotalsFrom(snap))
	c.reconcile(ctx, "add_item",
		secured,
		c.persist(ctx, snap),
		c.warm(ctx, line.Product),
	)
	c.logg.Info(c.logg.WithItemID(ctx, line.ID), "cart.item.added")
	return c.State(), nil
}

func (c *Coordinator) RemoveItem(ctx context.Context, itemID string) (state State, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe("remove_item", started, err) }()

	c.InitializeCart(ctx)
	c.touch()
	ctx = c.logg.WithItemID(c.logCtx(ctx), itemID)

	secured := c.secure(ctx, func(rc security.RequestContext) (security.Verdict, error) {
		return c.guard.SecureRemoveItem(ctx, rc, itemID)
	})

	before, _ := c.core.Item(itemID)
	snap, err := c.core.RemoveItem(itemID)
	if err != nil {
		return c.State(), err
	}
	c.clearError()
	c.advanced.DeselectItem(itemID)

	c.tracker.TrackRemoveFromCart(before.Product, before.Quantity, analytics.TotalsFrom(snap))
	c.reconcile(ctx, "remove_item", secured, c.persist(ctx, snap))
	c.logg.Info(ctx, "cart.item.removed")
	return c.State(), nil
}

// UpdateQuantity sets a line's quantity; zero removes the line.
func (c *Coordinator) UpdateQuantity(ctx context.Context, itemID string, quantity int) (state State, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe("update_quantity", started, err) }()

	c.InitializeCart(ctx)
	c.touch()
	ctx = c.logg.WithItemID(c.logCtx(ctx), itemID)

	secured := c.secure(ctx, func(rc security.RequestContext) (security.Verdict, error) {
		return c.guard.SecureUpdateQuantity(ctx, rc, itemID, quantity)
	})

	before, _ := c.core.Item(itemID)
	snap, err := c.core.UpdateQuantity(itemID, quantity)
	if err != nil {
		return c.State(), err
	}
	c.clearError()

	totals := analytics.TotalsFrom(snap)
	if quantity == 0 {
		c.advanced.DeselectItem(itemID)
		c.tracker.TrackRemoveFromCart(before.Product, before.Quantity, totals)
	} else {
		c.tracker.TrackQuantityUpdate(before.Product, before.Quantity, quantity, totals)
	}
	c.reconcile(ctx, "update_quantity", secured, c.persist(ctx, snap))
	return c.State(), nil
}

// ClearCart empties the cart, drops the stored payload and resets the
// selection and recommendations.
func (c *Coordinator) ClearCart(ctx context.Context) (state State, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe("clear_cart", started, err) }()

	c.InitializeCart(ctx)
	c.touch()
	ctx = c.logCtx(ctx)

	c.core.Clear()
	c.clearError()
	c.advanced.DeselectAllItems()
	c.advanced.ClearRecommendations()

	c.reconcile(ctx, "clear_cart", Result{Module: ModulePersistence, Err: c.store.Clear(ctx)})
	c.logg.Info(ctx, "cart.cleared")
	return c.State(), nil
}

// secure runs a guard check and turns its outcome into a side-effect
// result. Flagged requests are still let through.
func (c *Coordinator) secure(ctx context.Context, check func(security.RequestContext) (security.Verdict, error)) Result {
	client := clientFrom(ctx)
	rc := security.RequestContext{
		SessionID: c.core.SessionID(),
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		Timestamp: c.opts.Now(),
	}
	_, err := check(rc)
	return Result{Module: ModuleSecurity, Err: err}
}
