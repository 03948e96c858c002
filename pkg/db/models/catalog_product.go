package models

import (
	"time"
)

// CatalogProductImage is the stored shape of a product image.
type CatalogProductImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// CatalogProduct is the local product table used when the catalog is served from the database.
type CatalogProduct struct {
	ID        string                `gorm:"column:id;primaryKey"`
	Slug      string                `gorm:"column:slug;not null;uniqueIndex"`
	Name      string                `gorm:"column:name;not null"`
	Price     float64               `gorm:"column:price;not null;default:0"`
	Stock     int                   `gorm:"column:stock;not null;default:0"`
	Category  string                `gorm:"column:category;not null;default:''"`
	Active    bool                  `gorm:"column:active;not null"`
	Images    []CatalogProductImage `gorm:"column:images;type:text;serializer:json"`
	UpdatedAt time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (CatalogProduct) TableName() string { return "catalog_products" }
