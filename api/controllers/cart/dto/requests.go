package dto

import "github.com/angelmondragon/packfinderz-cart/internal/cart"

// ProductInput is the storefront's product snapshot. Price and stock are
// reconciled against the catalog after the item lands in the cart.
type ProductInput struct {
	ID         string            `json:"id" validate:"required,max=100"`
	Slug       string            `json:"slug" validate:"omitempty,max=200"`
	Name       string            `json:"name" validate:"required,max=300"`
	Price      float64           `json:"price" validate:"gte=0"`
	Images     cart.Images       `json:"images,omitempty"`
	Stock      int               `json:"stock" validate:"gte=0"`
	Category   string            `json:"category,omitempty" validate:"omitempty,max=100"`
	Weight     float64           `json:"weight,omitempty" validate:"gte=0"`
	Dimensions *cart.Dimensions  `json:"dimensions,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (p ProductInput) Product() cart.Product {
	return cart.Product{
		ID:         p.ID,
		Slug:       p.Slug,
		Name:       p.Name,
		Price:      p.Price,
		Images:     p.Images,
		Stock:      p.Stock,
		Category:   p.Category,
		Weight:     p.Weight,
		Dimensions: p.Dimensions,
		Attributes: p.Attributes,
	}
}

// AddItemRequest adds a product. Quantity defaults to 1.
type AddItemRequest struct {
	Product  ProductInput `json:"product"`
	Quantity *int         `json:"quantity,omitempty"`
	Source   string       `json:"source,omitempty" validate:"omitempty,oneof=manual recommendation saved"`
}

func (r AddItemRequest) QuantityOrDefault() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// UpdateQuantityRequest sets a line quantity; zero removes the line.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type SelectionRequest struct {
	Action  string   `json:"action" validate:"required,oneof=select deselect toggle select_all deselect_all toggle_all"`
	ItemIDs []string `json:"itemIds,omitempty" validate:"omitempty,max=500,dive,required,max=100"`
}

type SaveForLaterRequest struct {
	ItemID string `json:"itemId" validate:"required,max=100"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=100"`
}
