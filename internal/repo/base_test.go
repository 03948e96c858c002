package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type row struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&row{}))
	return conn
}

func TestBaseDBBindsContext(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	bound := base.DB(ctx)
	require.NotNil(t, bound.Statement)
	assert.Equal(t, ctx, bound.Statement.Context)

	assert.Same(t, conn, base.DB(nil))
}

func TestTakeOneReportsMissingRows(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)
	ctx := context.Background()
	require.NoError(t, conn.Create(&row{Key: "nuxt-cart", Value: "{}"}).Error)

	var got row
	found, err := base.TakeOne(ctx, &got, "key = ?", "nuxt-cart")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "{}", got.Value)

	found, err = base.TakeOne(ctx, &row{}, "key = ?", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
