package catalog

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
)

// looseString accepts JSON strings and numbers; storefront ids come as either.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*s = ""
		return nil
	}
	if trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

type wireProduct struct {
	ID         looseString       `json:"id"`
	Slug       string            `json:"slug"`
	Name       string            `json:"name"`
	Price      float64           `json:"price"`
	Images     cart.Images       `json:"images"`
	Stock      int               `json:"stock"`
	Category   looseString       `json:"category"`
	Weight     float64           `json:"weight"`
	Dimensions *cart.Dimensions  `json:"dimensions"`
	Attributes map[string]string `json:"attributes"`
	IsActive   *bool             `json:"is_active"`
	Active     *bool             `json:"active"`
}

func (w wireProduct) snapshot() Snapshot {
	active := true
	switch {
	case w.IsActive != nil:
		active = *w.IsActive
	case w.Active != nil:
		active = *w.Active
	}
	return Snapshot{
		Product: cart.Product{
			ID:         strings.TrimSpace(string(w.ID)),
			Slug:       strings.TrimSpace(w.Slug),
			Name:       strings.TrimSpace(w.Name),
			Price:      w.Price,
			Images:     w.Images,
			Stock:      w.Stock,
			Category:   strings.TrimSpace(string(w.Category)),
			Weight:     w.Weight,
			Dimensions: w.Dimensions,
			Attributes: w.Attributes,
		},
		Active: active,
	}
}

// productEnvelope accepts both {"product": {...}} and a bare product object.
type productEnvelope struct {
	Product *wireProduct `json:"product"`
}

func decodeProduct(body []byte) (Snapshot, bool, error) {
	var env productEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Snapshot{}, false, err
	}
	if env.Product != nil {
		snap := env.Product.snapshot()
		return snap, snap.Product.ID != "", nil
	}
	var bare wireProduct
	if err := json.Unmarshal(body, &bare); err != nil {
		return Snapshot{}, false, err
	}
	snap := bare.snapshot()
	return snap, snap.Product.ID != "", nil
}

type wireRecommendations struct {
	Success         bool           `json:"success"`
	Recommendations []wireProduct  `json:"recommendations"`
	Metadata        map[string]any `json:"metadata"`
}

func (w wireRecommendations) response() Response {
	out := Response{Success: w.Success, Metadata: w.Metadata, Recommendations: make([]cart.Product, 0, len(w.Recommendations))}
	for _, p := range w.Recommendations {
		snap := p.snapshot()
		if snap.Product.ID == "" {
			continue
		}
		out.Recommendations = append(out.Recommendations, snap.Product)
	}
	return out
}
