package models

import "time"

// CartSnapshot is the durable copy of a serialized cart payload.
type CartSnapshot struct {
	Key       string    `gorm:"column:storage_key;primaryKey"`
	SessionID string    `gorm:"column:session_id;not null;default:''"`
	Payload   string    `gorm:"column:payload;type:text;not null"`
	Version   string    `gorm:"column:version;not null;default:'1.0'"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartSnapshot) TableName() string { return "cart_snapshots" }
