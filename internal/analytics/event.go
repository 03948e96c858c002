package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
)

// Event is a single cart lifecycle event.
type Event struct {
	ID               string              `json:"id"`
	Type             enums.CartEventType `json:"type"`
	SessionID        string              `json:"sessionId"`
	UserID           string              `json:"userId,omitempty"`
	ProductID        string              `json:"productId,omitempty"`
	Quantity         int                 `json:"quantity,omitempty"`
	PreviousQuantity int                 `json:"previousQuantity,omitempty"`
	Value            float64             `json:"value,omitempty"`
	CartTotal        float64             `json:"cartTotal"`
	CartItemCount    int                 `json:"cartItemCount"`
	Timestamp        time.Time           `json:"timestamp"`
	Metadata         map[string]any      `json:"metadata,omitempty"`

	seq uint64
}

// Totals are the cart aggregates recorded alongside every event.
type Totals struct {
	Subtotal  decimal.Decimal
	ItemCount int
}

func TotalsFrom(snapshot cart.Snapshot) Totals {
	return Totals{Subtotal: snapshot.Subtotal(), ItemCount: snapshot.ItemCount()}
}

func lineValue(price float64, quantity int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(2).InexactFloat64()
}

func productMetadata(p cart.Product) map[string]any {
	meta := map[string]any{
		"productName":  p.Name,
		"productPrice": p.Price,
	}
	if p.Category != "" {
		meta["productCategory"] = p.Category
	}
	return meta
}

// Row mirrors the cart_events BigQuery schema.
type Row struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	SessionID        string             `bigquery:"session_id"`
	UserID           *string            `bigquery:"user_id"`
	ProductID        *string            `bigquery:"product_id"`
	Quantity         *int64             `bigquery:"quantity"`
	PreviousQuantity *int64             `bigquery:"previous_quantity"`
	Value            *float64           `bigquery:"value"`
	CartTotal        float64            `bigquery:"cart_total"`
	CartItemCount    int64              `bigquery:"cart_item_count"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	Metadata         cbigquery.NullJSON `bigquery:"metadata"`
}

func (e Event) row() (*Row, error) {
	meta, err := EncodeJSON(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("event %s metadata: %w", e.ID, err)
	}
	r := &Row{
		EventID:       e.ID,
		EventType:     string(e.Type),
		SessionID:     e.SessionID,
		UserID:        strPtr(e.UserID),
		ProductID:     strPtr(e.ProductID),
		CartTotal:     e.CartTotal,
		CartItemCount: int64(e.CartItemCount),
		OccurredAt:    e.Timestamp.UTC(),
		Metadata:      meta,
	}
	if e.ProductID != "" {
		r.Quantity = int64Ptr(e.Quantity)
		r.Value = &e.Value
	}
	if e.Type == enums.CartEventUpdateQuantity {
		r.PreviousQuantity = int64Ptr(e.PreviousQuantity)
	}
	return r, nil
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func int64Ptr(v int) *int64 {
	n := int64(v)
	return &n
}

// EncodeJSON serializes the provided payload so it can be stored in BigQuery JSON columns.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case map[string]any:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
	case json.RawMessage:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	}

	marshaled, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(marshaled)}, nil
}
