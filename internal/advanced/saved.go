package advanced

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

type SavedItem struct {
	ID           string       `json:"id"`
	Product      cart.Product `json:"product"`
	Quantity     int          `json:"quantity"`
	OriginItemID string       `json:"originItemId"`
	SavedAt      time.Time    `json:"savedAt"`
	Reason       string       `json:"reason,omitempty"`
}

// SaveItemForLater records item in the saved list and then asks the cart to
// drop it. If the removal fails the saved record is discarded again.
func (s *Service) SaveItemForLater(ctx context.Context, item cart.Item, reason string, remove RemoveFunc) (SavedItem, error) {
	if strings.TrimSpace(item.ID) == "" {
		return SavedItem{}, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	now := s.opts.Now()
	saved := SavedItem{
		ID:           cart.NewID(cart.PrefixSaved, now),
		Product:      item.Product,
		Quantity:     item.Quantity,
		OriginItemID: item.ID,
		SavedAt:      now,
		Reason:       strings.TrimSpace(reason),
	}

	s.mu.Lock()
	s.saved = append(s.saved, saved)
	s.mu.Unlock()

	if err := remove(ctx, item.ID); err != nil {
		s.dropSaved(saved.ID)
		return SavedItem{}, err
	}
	return saved, nil
}

// RestoreFromSaved adds the saved product back to the cart. The saved record
// is only dropped once the add succeeded.
func (s *Service) RestoreFromSaved(ctx context.Context, savedID string, add AddFunc) (SavedItem, error) {
	saved, ok := s.SavedItem(savedID)
	if !ok {
		return SavedItem{}, savedNotFound(savedID)
	}
	if err := add(ctx, saved.Product, saved.Quantity); err != nil {
		return SavedItem{}, err
	}
	s.dropSaved(savedID)
	return saved, nil
}

func (s *Service) RemoveFromSavedForLater(savedID string) error {
	if !s.dropSaved(savedID) {
		return savedNotFound(savedID)
	}
	return nil
}

func (s *Service) SavedItems() []SavedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SavedItem{}, s.saved...)
}

func (s *Service) SavedItem(savedID string) (SavedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, saved := range s.saved {
		if saved.ID == savedID {
			return saved, true
		}
	}
	return SavedItem{}, false
}

func (s *Service) IsProductSaved(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, saved := range s.saved {
		if saved.Product.ID == productID {
			return true
		}
	}
	return false
}

func (s *Service) dropSaved(savedID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, saved := range s.saved {
		if saved.ID == savedID {
			s.saved = append(s.saved[:i:i], s.saved[i+1:]...)
			return true
		}
	}
	return false
}

func savedNotFound(savedID string) error {
	return pkgerrors.New(pkgerrors.CodeSavedMissing, fmt.Sprintf("saved item %s not found", savedID))
}
