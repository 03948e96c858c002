package dto

import (
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/advanced"
	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
	"github.com/angelmondragon/packfinderz-cart/internal/validation"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
)

type Item struct {
	ID           string           `json:"id"`
	Product      cart.Product     `json:"product"`
	Quantity     int              `json:"quantity"`
	LineTotal    string           `json:"lineTotal"`
	AddedAt      time.Time        `json:"addedAt"`
	LastModified time.Time        `json:"lastModified"`
	Source       enums.ItemSource `json:"source"`
	Selected     bool             `json:"selected"`
}

// Cart is the wire view of a coordinator state. Money is rendered with two
// decimals.
type Cart struct {
	SessionID  string          `json:"sessionId"`
	Items      []Item          `json:"items"`
	ItemCount  int             `json:"itemCount"`
	Subtotal   string          `json:"subtotal"`
	Loading    bool            `json:"loading"`
	Error      string          `json:"error,omitempty"`
	LastSyncAt *time.Time      `json:"lastSyncAt,omitempty"`
	Lock       cart.LockStatus `json:"lock"`
	Selection  Selection       `json:"selection"`
}

type Selection struct {
	ItemIDs     []string `json:"itemIds"`
	Count       int      `json:"count"`
	Subtotal    string   `json:"subtotal"`
	AllSelected bool     `json:"allSelected"`
}

func NewCart(state coordinator.State, sel coordinator.Selection) Cart {
	selected := make(map[string]struct{}, len(sel.ItemIDs))
	for _, id := range sel.ItemIDs {
		selected[id] = struct{}{}
	}
	items := make([]Item, 0, len(state.Items))
	for _, item := range state.Items {
		_, isSelected := selected[item.ID]
		items = append(items, Item{
			ID:           item.ID,
			Product:      item.Product,
			Quantity:     item.Quantity,
			LineTotal:    item.LineTotal().StringFixed(2),
			AddedAt:      item.AddedAt,
			LastModified: item.LastModified,
			Source:       item.Source,
			Selected:     isSelected,
		})
	}
	ids := sel.ItemIDs
	if ids == nil {
		ids = []string{}
	}
	return Cart{
		SessionID:  state.SessionID,
		Items:      items,
		ItemCount:  state.ItemCount,
		Subtotal:   state.Subtotal.StringFixed(2),
		Loading:    state.Loading,
		Error:      state.Error,
		LastSyncAt: state.LastSyncAt,
		Lock:       state.Lock,
		Selection: Selection{
			ItemIDs:     ids,
			Count:       sel.Count,
			Subtotal:    sel.Subtotal,
			AllSelected: sel.AllSelected,
		},
	}
}

type ValidationResult struct {
	ItemID    string `json:"itemId"`
	ProductID string `json:"productId"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	Quantity  int    `json:"quantity"`
}

type ValidationReport struct {
	Results   []ValidationResult `json:"results"`
	Valid     int                `json:"valid"`
	Refreshed int                `json:"refreshed"`
	Removed   int                `json:"removed"`
	Transient int                `json:"transient"`
	Cart      Cart               `json:"cart"`
}

func NewValidationReport(report validation.Report, c Cart) ValidationReport {
	results := make([]ValidationResult, 0, len(report.Results))
	for _, res := range report.Results {
		results = append(results, ValidationResult{
			ItemID:    res.ItemID,
			ProductID: res.ProductID,
			Outcome:   string(res.Outcome),
			Reason:    res.Reason,
			Quantity:  res.Quantity,
		})
	}
	return ValidationReport{
		Results:   results,
		Valid:     report.Valid,
		Refreshed: report.Refreshed,
		Removed:   report.Removed,
		Transient: report.Transient,
		Cart:      c,
	}
}

type BulkFailure struct {
	ItemID  string `json:"itemId"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type BulkResult struct {
	Processed []string             `json:"processed"`
	Failed    []BulkFailure        `json:"failed"`
	Saved     []advanced.SavedItem `json:"saved,omitempty"`
	Cart      Cart                 `json:"cart"`
}

func NewBulkResult(res advanced.BulkResult, c Cart, codeOf func(error) string) BulkResult {
	failed := make([]BulkFailure, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, BulkFailure{ItemID: f.ItemID, Code: codeOf(f.Err), Message: f.Err.Error()})
	}
	processed := res.Processed
	if processed == nil {
		processed = []string{}
	}
	return BulkResult{Processed: processed, Failed: failed, Saved: res.Saved, Cart: c}
}

type SavedItems struct {
	Items []advanced.SavedItem `json:"items"`
	Count int                  `json:"count"`
}

func NewSavedItems(items []advanced.SavedItem) SavedItems {
	if items == nil {
		items = []advanced.SavedItem{}
	}
	return SavedItems{Items: items, Count: len(items)}
}

type SavedItemResult struct {
	Item advanced.SavedItem `json:"item"`
	Cart Cart               `json:"cart"`
}

type Recommendations struct {
	Items   []advanced.Recommendation `json:"items"`
	Loading bool                      `json:"loading"`
}

func NewRecommendations(recs []advanced.Recommendation, loading bool) Recommendations {
	if recs == nil {
		recs = []advanced.Recommendation{}
	}
	return Recommendations{Items: recs, Loading: loading}
}
