package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-cart/pkg/db/models"
	pkgredis "github.com/angelmondragon/packfinderz-cart/pkg/redis"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", pkgredis.ErrKeyMissing
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) CartKey(key string) string { return "pf:cart:" + key }

func openSnapshotDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.CartSnapshot{}))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func exerciseStorage(t *testing.T, store Storage) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "nuxt-cart:cart_1_abc")
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "nuxt-cart:cart_1_abc", `{"sessionId":"cart_1_abc","items":[]}`))
	got, err := store.Get(ctx, "nuxt-cart:cart_1_abc")
	require.NoError(t, err)
	assert.Equal(t, `{"sessionId":"cart_1_abc","items":[]}`, got)

	require.NoError(t, store.Set(ctx, "nuxt-cart:cart_1_abc", `{"sessionId":"cart_1_abc","items":[{}]}`))
	got, err = store.Get(ctx, "nuxt-cart:cart_1_abc")
	require.NoError(t, err)
	assert.Equal(t, `{"sessionId":"cart_1_abc","items":[{}]}`, got)

	require.NoError(t, store.Remove(ctx, "nuxt-cart:cart_1_abc"))
	_, err = store.Get(ctx, "nuxt-cart:cart_1_abc")
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.NoError(t, store.Remove(ctx, "nuxt-cart:cart_1_abc"))
}

func TestMemoryStorageContract(t *testing.T) {
	t.Parallel()
	exerciseStorage(t, NewMemoryStorage(0))
}

func TestMemoryStorageQuota(t *testing.T) {
	t.Parallel()
	store := NewMemoryStorage(10)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", "12345"))
	require.NoError(t, store.Set(ctx, "a", "1234567890"))
	require.ErrorIs(t, store.Set(ctx, "b", "x"), ErrQuotaExceeded)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1234567890", got)
}

func TestMemoryStorageHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewMemoryStorage(0).Set(ctx, "a", "b"), context.Canceled)
}

func TestRedisStorageContract(t *testing.T) {
	t.Parallel()
	client := newFakeRedis()
	exerciseStorage(t, NewRedisStorage(client, 24*time.Hour))

	require.NoError(t, NewRedisStorage(client, time.Hour).Set(context.Background(), "k", "v"))
	assert.Equal(t, time.Hour, client.ttls["pf:cart:k"])
}

func TestGormStorageContract(t *testing.T) {
	conn := openSnapshotDB(t)
	store := NewGormStorage(conn)
	exerciseStorage(t, store)

	require.NoError(t, store.Set(context.Background(), "nuxt-cart:cart_9_xyz", `{"sessionId":"cart_9_xyz","items":[]}`))
	var row models.CartSnapshot
	require.NoError(t, conn.Where("storage_key = ?", "nuxt-cart:cart_9_xyz").Take(&row).Error)
	assert.Equal(t, "cart_9_xyz", row.SessionID)
	assert.Equal(t, PayloadVersion, row.Version)
}

func TestGormStoragePruneDropsStaleSnapshots(t *testing.T) {
	conn := openSnapshotDB(t)
	store := NewGormStorage(conn)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return now.Add(-72 * time.Hour) }
	require.NoError(t, store.Set(ctx, "nuxt-cart:cart_1_old", `{"sessionId":"cart_1_old","items":[]}`))
	store.now = func() time.Time { return now }
	require.NoError(t, store.Set(ctx, "nuxt-cart:cart_2_new", `{"sessionId":"cart_2_new","items":[]}`))

	pruned, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	_, err = store.Get(ctx, "nuxt-cart:cart_1_old")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = store.Get(ctx, "nuxt-cart:cart_2_new")
	assert.NoError(t, err)
}

func TestPeekSessionIDToleratesGarbage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", peekSessionID("not json"))
	assert.Equal(t, "cart_1_a", peekSessionID(`{"sessionId":"cart_1_a"}`))
}
