package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-cart/pkg/db"
)

// Base is embedded by the gorm-backed cart and catalog stores.
type Base struct {
	db *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{db: conn}
}

// DB returns the connection bound to ctx. A nil ctx returns it unbound.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// TakeOne loads the first row matching query into dest. A missing row is
// reported as found=false with no error.
func (b Base) TakeOne(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	err := b.DB(ctx).Where(query, args...).Take(dest).Error
	if db.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
