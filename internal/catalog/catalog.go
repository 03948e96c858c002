package catalog

import (
	"context"
	"errors"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
)

// ErrProductNotFound marks a product the catalog no longer knows about.
var ErrProductNotFound = errors.New("catalog product not found")

// Snapshot is the current catalog view of a product.
type Snapshot struct {
	Product cart.Product
	Active  bool
}

// ProductFetcher resolves a product by slug (or id when no slug is known).
type ProductFetcher interface {
	FetchProduct(ctx context.Context, slug string) (Snapshot, error)
}

// Request asks for products related to the current cart.
type Request struct {
	ProductIDs []string `json:"productIds"`
	Categories []string `json:"categories"`
	Limit      int      `json:"limit"`
}

type Response struct {
	Success         bool           `json:"success"`
	Recommendations []cart.Product `json:"recommendations"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Recommender returns related products for a cart.
type Recommender interface {
	Recommend(ctx context.Context, req Request) (Response, error)
}
