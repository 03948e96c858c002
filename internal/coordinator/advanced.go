package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/advanced"
	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

// Select applies a selection action and returns the resulting selection.
// Item-scoped actions ignore ids that are not in the cart.
func (c *Coordinator) Select(action enums.SelectionAction, itemIDs []string) ([]string, error) {
	items := c.core.Items()
	switch action {
	case enums.SelectionActionSelect, enums.SelectionActionDeselect, enums.SelectionActionToggle:
		for _, id := range itemIDs {
			if _, ok := c.core.Item(id); !ok {
				continue
			}
			switch action {
			case enums.SelectionActionSelect:
				c.advanced.SelectItem(id)
			case enums.SelectionActionDeselect:
				c.advanced.DeselectItem(id)
			default:
				c.advanced.ToggleItemSelection(id)
			}
		}
	case enums.SelectionActionSelectAll:
		c.advanced.SelectAllItems(items)
	case enums.SelectionActionDeselectAll:
		c.advanced.DeselectAllItems()
	case enums.SelectionActionToggleAll:
		c.advanced.ToggleSelectAll(items)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown selection action %q", action))
	}
	c.touch()
	return c.advanced.SelectedIDs(), nil
}

// Selection describes the selected lines.
type Selection struct {
	ItemIDs     []string `json:"itemIds"`
	Count       int      `json:"count"`
	Subtotal    string   `json:"subtotal"`
	AllSelected bool     `json:"allSelected"`
}

func (c *Coordinator) Selection() Selection {
	items := c.core.Items()
	return Selection{
		ItemIDs:     c.advanced.SelectedIDs(),
		Count:       c.advanced.SelectedCount(items),
		Subtotal:    c.advanced.SelectedSubtotal(items).StringFixed(2),
		AllSelected: c.advanced.AllSelected(items),
	}
}

func (c *Coordinator) BulkOperationInProgress() bool {
	return c.advanced.BulkOperationInProgress()
}

// BulkRemoveSelected removes every selected line through the full
// mutation pipeline.
func (c *Coordinator) BulkRemoveSelected(ctx context.Context) (res advanced.BulkResult, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe("bulk_remove", started, err) }()
	c.InitializeCart(ctx)
	return c.advanced.BulkRemoveSelected(ctx, c.core.Items(), c.removeFunc())
}

func (c *Coordinator) BulkUpdateQuantity(ctx context.Context, quantity int) (res advanced.BulkResult, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe("bulk_update_quantity", started, err) }()
	c.InitializeCart(ctx)
	return c.advanced.BulkUpdateQuantity(ctx, c.core.Items(), quantity, func(ctx context.Context, itemID string, qty int) error {
		_, err := c.UpdateQuantity(ctx, itemID, qty)
		return err
	})
}

func (c *Coordinator) MoveSelectedToSavedForLater(ctx context.Context) (res advanced.BulkResult, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe("bulk_save", started, err) }()
	c.InitializeCart(ctx)
	return c.advanced.MoveSelectedToSavedForLater(ctx, c.core.Items(), c.removeFunc())
}

// SaveItemForLater moves a line from the cart to the saved list.
func (c *Coordinator) SaveItemForLater(ctx context.Context, itemID, reason string) (advanced.SavedItem, error) {
	c.InitializeCart(ctx)
	item, ok := c.core.Item(itemID)
	if !ok {
		return advanced.SavedItem{}, pkgerrors.New(pkgerrors.CodeItemMissing, fmt.Sprintf("item %s not found", itemID))
	}
	return c.advanced.SaveItemForLater(ctx, item, reason, c.removeFunc())
}

// RestoreFromSaved adds a saved product back with its saved quantity.
func (c *Coordinator) RestoreFromSaved(ctx context.Context, savedID string) (advanced.SavedItem, error) {
	c.InitializeCart(ctx)
	return c.advanced.RestoreFromSaved(ctx, savedID, func(ctx context.Context, product cart.Product, quantity int) error {
		_, err := c.AddItemFrom(ctx, product, quantity, enums.ItemSourceSaved)
		return err
	})
}

func (c *Coordinator) RemoveFromSavedForLater(savedID string) error {
	return c.advanced.RemoveFromSavedForLater(savedID)
}

func (c *Coordinator) SavedItems() []advanced.SavedItem {
	return c.advanced.SavedItems()
}

func (c *Coordinator) LoadRecommendations(ctx context.Context) []advanced.Recommendation {
	c.InitializeCart(ctx)
	return c.advanced.LoadRecommendations(c.logCtx(ctx), c.core.Items())
}

func (c *Coordinator) Recommendations() []advanced.Recommendation {
	return c.advanced.Recommendations()
}

func (c *Coordinator) RecommendationsLoading() bool {
	return c.advanced.RecommendationsLoading()
}

func (c *Coordinator) ClearRecommendations() {
	c.advanced.ClearRecommendations()
}

func (c *Coordinator) removeFunc() advanced.RemoveFunc {
	return func(ctx context.Context, itemID string) error {
		_, err := c.RemoveItem(ctx, itemID)
		return err
	}
}
