package advanced

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

const reasonBulkMove = "bulk_move"

type ItemFailure struct {
	ItemID string `json:"itemId"`
	Err    error  `json:"-"`
}

// BulkResult lists what a bulk operation did. Individual failures do not
// abort the batch.
type BulkResult struct {
	Processed []string      `json:"processed"`
	Failed    []ItemFailure `json:"failed,omitempty"`
	Saved     []SavedItem   `json:"saved,omitempty"`
}

// Err combines the per-item failures.
func (r BulkResult) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, fmt.Errorf("item %s: %w", f.ItemID, f.Err))
	}
	return err
}

func (r *BulkResult) record(itemID string, err error) {
	if err != nil {
		r.Failed = append(r.Failed, ItemFailure{ItemID: itemID, Err: err})
		return
	}
	r.Processed = append(r.Processed, itemID)
}

func (s *Service) BulkOperationInProgress() bool {
	return s.bulk.Load()
}

// runBulk holds the in-flight flag for the duration of fn. The selection is
// cleared and the flag released on every exit path.
func (s *Service) runBulk(items []cart.Item, fn func(targets []cart.Item) BulkResult) (BulkResult, error) {
	if !s.bulk.CompareAndSwap(false, true) {
		return BulkResult{}, pkgerrors.New(pkgerrors.CodeBulkBusy, "bulk operation already in progress")
	}
	defer s.bulk.Store(false)
	defer s.DeselectAllItems()

	return fn(s.SelectedItems(items)), nil
}

func (s *Service) BulkRemoveSelected(ctx context.Context, items []cart.Item, remove RemoveFunc) (BulkResult, error) {
	return s.runBulk(items, func(targets []cart.Item) BulkResult {
		var res BulkResult
		for _, item := range targets {
			res.record(item.ID, guarded(func() error { return remove(ctx, item.ID) }))
		}
		return res
	})
}

func (s *Service) BulkUpdateQuantity(ctx context.Context, items []cart.Item, quantity int, update UpdateFunc) (BulkResult, error) {
	return s.runBulk(items, func(targets []cart.Item) BulkResult {
		var res BulkResult
		for _, item := range targets {
			res.record(item.ID, guarded(func() error { return update(ctx, item.ID, quantity) }))
		}
		return res
	})
}

func (s *Service) MoveSelectedToSavedForLater(ctx context.Context, items []cart.Item, remove RemoveFunc) (BulkResult, error) {
	return s.runBulk(items, func(targets []cart.Item) BulkResult {
		var res BulkResult
		for _, item := range targets {
			var saved SavedItem
			err := guarded(func() error {
				var err error
				saved, err = s.SaveItemForLater(ctx, item, reasonBulkMove, remove)
				return err
			})
			res.record(item.ID, err)
			if err == nil {
				res.Saved = append(res.Saved, saved)
			}
		}
		return res
	})
}

// guarded turns a panic in a callback into an error for that item.
func guarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("bulk callback panicked: %v", r))
		}
	}()
	return fn()
}
