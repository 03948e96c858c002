package catalog

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/repo"
	"github.com/angelmondragon/packfinderz-cart/pkg/db"
	"github.com/angelmondragon/packfinderz-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

const repositoryAlgorithm = "category_affinity"

// Repository serves products and recommendations from catalog_products.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// FetchProduct looks the product up by slug, then by id.
func (r *Repository) FetchProduct(ctx context.Context, slug string) (Snapshot, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "product slug is required")
	}
	var row models.CatalogProduct
	found, err := r.TakeOne(ctx, &row, "slug = ? OR id = ?", slug, slug)
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog product")
	}
	if !found {
		return Snapshot{}, fmt.Errorf("%s: %w", slug, ErrProductNotFound)
	}
	return Snapshot{Product: toCartProduct(row), Active: row.Active}, nil
}

// Recommend returns active, in-stock products sharing a category with the
// cart, excluding products already in it.
func (r *Repository) Recommend(ctx context.Context, req Request) (Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	q := r.DB(ctx).
		Model(&models.CatalogProduct{}).
		Where("active = ? AND stock > 0", true)
	if len(req.ProductIDs) > 0 {
		q = q.Where("id NOT IN ?", req.ProductIDs)
	}
	if len(req.Categories) > 0 {
		q = q.Where("category IN ?", req.Categories)
	}

	var rows []models.CatalogProduct
	if err := q.Order("updated_at DESC").Order("id").Limit(limit).Find(&rows).Error; err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query recommendations")
	}

	out := Response{
		Success:         true,
		Recommendations: make([]cart.Product, 0, len(rows)),
		Metadata:        map[string]any{"algorithm": repositoryAlgorithm, "count": len(rows)},
	}
	for _, row := range rows {
		out.Recommendations = append(out.Recommendations, toCartProduct(row))
	}
	return out, nil
}

// Create inserts a catalog product; duplicates surface as CONFLICT.
func (r *Repository) Create(ctx context.Context, product cart.Product, active bool) error {
	row := fromCartProduct(product, active)
	if err := r.DB(ctx).Create(&row).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "catalog product already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create catalog product")
	}
	return nil
}

func toCartProduct(row models.CatalogProduct) cart.Product {
	images := make(cart.Images, 0, len(row.Images))
	for _, img := range row.Images {
		images = append(images, cart.ImageRef{URL: img.URL, Alt: img.Alt})
	}
	if len(images) == 0 {
		images = nil
	}
	return cart.Product{
		ID:       row.ID,
		Slug:     row.Slug,
		Name:     row.Name,
		Price:    row.Price,
		Images:   images,
		Stock:    row.Stock,
		Category: row.Category,
	}
}

func fromCartProduct(p cart.Product, active bool) models.CatalogProduct {
	images := make([]models.CatalogProductImage, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, models.CatalogProductImage{URL: img.URL, Alt: img.Alt})
	}
	slug := p.Slug
	if slug == "" {
		slug = p.ID
	}
	return models.CatalogProduct{
		ID:       p.ID,
		Slug:     slug,
		Name:     p.Name,
		Price:    p.Price,
		Stock:    p.Stock,
		Category: p.Category,
		Active:   active,
		Images:   images,
	}
}
