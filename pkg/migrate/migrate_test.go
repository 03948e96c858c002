package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-cart/pkg/config"
)

func TestDialect(t *testing.T) {
	got, err := Dialect(config.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", got)

	got, err = Dialect("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", got)

	_, err = Dialect("mssql")
	assert.Error(t, err)
}

func TestMigrationsApplyOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	ctx := context.Background()
	require.NoError(t, Run(ctx, sqlDB, config.DriverSQLite, "migrations", "up"))

	for _, table := range []string{"cart_snapshots", "catalog_products"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	require.NoError(t, MigrateToVersion(ctx, sqlDB, config.DriverSQLite, "migrations", "20260301120000"))
	assert.True(t, conn.Migrator().HasTable("cart_snapshots"))
	assert.False(t, conn.Migrator().HasTable("catalog_products"))
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up"), 0o644))
	assert.Error(t, ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_no_down.sql"), []byte("-- +goose Up\n"), 0o644))
	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "+goose Down")

	dir = t.TempDir()
	body := "-- +goose Up\nCREATE TABLE t (id SERIAL PRIMARY KEY, doc JSONB);\n-- +goose Down\nDROP TABLE t;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_pg_only.sql"), []byte(body), 0o644))
	err = ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-portable")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Cart Index!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_cart_index.sql"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}
