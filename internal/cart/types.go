package cart

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
)

// ImageRef is the canonical image reference carried by product snapshots.
type ImageRef struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Images accepts a single URL string, a list of URL strings, or a list of
// {url, alt} objects and normalizes them into ImageRefs.
type Images []ImageRef

func (i *Images) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*i = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*i = nil
			return nil
		}
		*i = Images{{URL: single}}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	out := make(Images, 0, len(raw))
	for _, entry := range raw {
		var url string
		if err := json.Unmarshal(entry, &url); err == nil {
			if url != "" {
				out = append(out, ImageRef{URL: url})
			}
			continue
		}
		var ref ImageRef
		if err := json.Unmarshal(entry, &ref); err != nil {
			return fmt.Errorf("images: %w", err)
		}
		if ref.URL != "" {
			out = append(out, ref)
		}
	}
	*i = out
	return nil
}

// Primary returns the first image URL, if any.
func (i Images) Primary() string {
	if len(i) == 0 {
		return ""
	}
	return i[0].URL
}

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Product is the catalog snapshot embedded in a line item. Price and stock
// are only authoritative when freshly fetched from the catalog.
type Product struct {
	ID         string            `json:"id"`
	Slug       string            `json:"slug"`
	Name       string            `json:"name"`
	Price      float64           `json:"price"`
	Images     Images            `json:"images,omitempty"`
	Stock      int               `json:"stock"`
	Category   string            `json:"category,omitempty"`
	Weight     float64           `json:"weight,omitempty"`
	Dimensions *Dimensions       `json:"dimensions,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Item is a cart line. Exactly one Item exists per product id.
type Item struct {
	ID           string           `json:"id"`
	Product      Product          `json:"product"`
	Quantity     int              `json:"quantity"`
	AddedAt      time.Time        `json:"addedAt"`
	LastModified time.Time        `json:"lastModified"`
	Source       enums.ItemSource `json:"source"`
}

// LineTotal is price times quantity, unrounded.
func (i Item) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Product.Price).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is an immutable copy of the canonical cart contents.
type Snapshot struct {
	Items     []Item `json:"items"`
	SessionID string `json:"sessionId"`
}

func (s Snapshot) ItemCount() int {
	return ItemCount(s.Items)
}

func (s Snapshot) Subtotal() decimal.Decimal {
	return Subtotal(s.Items)
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// ItemCount sums quantities.
func ItemCount(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// Subtotal sums price x quantity and rounds to currency precision.
func Subtotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}

func copyItems(items []Item) []Item {
	if len(items) == 0 {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
