package persistence

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-cart/internal/repo"
	"github.com/angelmondragon/packfinderz-cart/pkg/db/models"
)

// GormStorage is the durable primary backend backed by cart_snapshots.
type GormStorage struct {
	repo.Base
	now func() time.Time
}

func NewGormStorage(conn *gorm.DB) *GormStorage {
	return &GormStorage{Base: repo.NewBase(conn), now: time.Now}
}

func (g *GormStorage) Get(ctx context.Context, key string) (string, error) {
	var row models.CartSnapshot
	found, err := g.TakeOne(ctx, &row, "storage_key = ?", key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrKeyNotFound
	}
	return row.Payload, nil
}

func (g *GormStorage) Set(ctx context.Context, key, value string) error {
	row := models.CartSnapshot{
		Key:       key,
		SessionID: peekSessionID(value),
		Payload:   value,
		Version:   PayloadVersion,
		UpdatedAt: g.now().UTC(),
	}
	return g.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"session_id", "payload", "version", "updated_at"}),
		}).
		Create(&row).
		Error
}

func (g *GormStorage) Remove(ctx context.Context, key string) error {
	return g.DB(ctx).
		Where("storage_key = ?", key).
		Delete(&models.CartSnapshot{}).
		Error
}

func peekSessionID(value string) string {
	var head struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal([]byte(value), &head); err != nil {
		return ""
	}
	return head.SessionID
}

// Prune deletes snapshots not written since cutoff and returns how many went.
func (g *GormStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := g.DB(ctx).
		Where("updated_at < ?", cutoff.UTC()).
		Delete(&models.CartSnapshot{})
	return res.RowsAffected, res.Error
}
