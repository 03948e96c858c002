package advanced

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
)

func (s *Service) SelectItem(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectLocked(itemID)
}

func (s *Service) selectLocked(itemID string) {
	if _, ok := s.selected[itemID]; ok {
		return
	}
	s.selected[itemID] = struct{}{}
	s.order = append(s.order, itemID)
}

func (s *Service) DeselectItem(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deselectLocked(itemID)
}

func (s *Service) deselectLocked(itemID string) {
	if _, ok := s.selected[itemID]; !ok {
		return
	}
	delete(s.selected, itemID)
	for i, id := range s.order {
		if id == itemID {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Service) ToggleItemSelection(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selected[itemID]; ok {
		s.deselectLocked(itemID)
		return
	}
	s.selectLocked(itemID)
}

func (s *Service) SelectAllItems(items []cart.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.selectLocked(item.ID)
	}
}

func (s *Service) DeselectAllItems() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSelectionLocked()
}

func (s *Service) clearSelectionLocked() {
	s.selected = make(map[string]struct{})
	s.order = nil
}

// ToggleSelectAll selects every item unless all are already selected, in
// which case it clears the selection.
func (s *Service) ToggleSelectAll(items []cart.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allSelectedLocked(items) {
		s.clearSelectionLocked()
		return
	}
	for _, item := range items {
		s.selectLocked(item.ID)
	}
}

func (s *Service) IsSelected(itemID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[itemID]
	return ok
}

// SelectedIDs returns the selection in the order items were selected.
func (s *Service) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.order...)
}

func (s *Service) HasSelection() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected) > 0
}

// SelectedItems returns the selected items in cart order.
func (s *Service) SelectedItems(items []cart.Item) []cart.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedItemsLocked(items)
}

func (s *Service) selectedItemsLocked(items []cart.Item) []cart.Item {
	out := []cart.Item{}
	for _, item := range items {
		if _, ok := s.selected[item.ID]; ok {
			out = append(out, item)
		}
	}
	return out
}

// SelectedCount counts selected ids that still exist in items.
func (s *Service) SelectedCount(items []cart.Item) int {
	return len(s.SelectedItems(items))
}

func (s *Service) SelectedSubtotal(items []cart.Item) decimal.Decimal {
	return cart.Subtotal(s.SelectedItems(items))
}

func (s *Service) AllSelected(items []cart.Item) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allSelectedLocked(items)
}

func (s *Service) allSelectedLocked(items []cart.Item) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if _, ok := s.selected[item.ID]; !ok {
			return false
		}
	}
	return true
}

// Retain drops selected ids that are no longer in the cart.
func (s *Service) Retain(items []cart.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		present[item.ID] = struct{}{}
	}
	for _, id := range append([]string(nil), s.order...) {
		if _, ok := present[id]; !ok {
			s.deselectLocked(id)
		}
	}
}
