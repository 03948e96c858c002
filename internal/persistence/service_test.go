package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

type flakyStorage struct {
	*MemoryStorage
	mu        sync.Mutex
	failSet   error
	failGet   error
	failDel   error
	setCalls  int
	getCalls  int
	lastValue string
}

func newFlakyStorage() *flakyStorage {
	return &flakyStorage{MemoryStorage: NewMemoryStorage(0)}
}

func (f *flakyStorage) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	f.getCalls++
	err := f.failGet
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.MemoryStorage.Get(ctx, key)
}

func (f *flakyStorage) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	f.setCalls++
	err := f.failSet
	f.lastValue = value
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStorage.Set(ctx, key, value)
}

func (f *flakyStorage) Remove(ctx context.Context, key string) error {
	if f.failDel != nil {
		return f.failDel
	}
	return f.MemoryStorage.Remove(ctx, key)
}

type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(primary, fallback Storage) *Service {
	clock := &steppingClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewService(primary, fallback, Options{SessionID: "cart_1_abc", Debounce: 10 * time.Millisecond, Now: clock.now}, nil)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStorage(0), NewMemoryStorage(0))
	ctx := context.Background()
	state := State{Items: []cart.Item{sampleItem("item_1", "p1", 3)}, SessionID: "cart_1_abc"}

	require.NoError(t, svc.Save(ctx, state))
	assert.Equal(t, enums.StorageBackendPrimary, svc.ActiveBackend())
	assert.False(t, svc.LastSaveAt().IsZero())
	assert.Equal(t, "nuxt-cart:cart_1_abc", svc.Key())

	res, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, enums.StorageBackendPrimary, res.Backend)
	assert.Equal(t, state.Items, res.State.Items)
	assert.Equal(t, "cart_1_abc", res.State.SessionID)
}

func TestSaveFallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()
	primary := newFlakyStorage()
	primary.failSet = ErrQuotaExceeded
	fallback := newFlakyStorage()
	svc := newTestService(primary, fallback)

	require.NoError(t, svc.Save(context.Background(), State{SessionID: "cart_1_abc"}))
	assert.Equal(t, enums.StorageBackendFallback, svc.ActiveBackend())
	assert.Equal(t, 1, fallback.setCalls)

	fallback.failSet = errors.New("redis down")
	err := svc.Save(context.Background(), State{SessionID: "cart_1_abc"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStorage))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, enums.StorageBackendNone, svc.ActiveBackend())
}

func TestSaveWithoutFallbackReportsStorageUnavailable(t *testing.T) {
	t.Parallel()
	primary := newFlakyStorage()
	primary.failSet = errors.New("read only")
	svc := newTestService(primary, nil)
	err := svc.Save(context.Background(), State{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStorage))
}

func TestLoadPicksNewestPayloadAcrossBackends(t *testing.T) {
	t.Parallel()
	primary := NewMemoryStorage(0)
	fallback := NewMemoryStorage(0)
	ctx := context.Background()

	older, err := encodePayload(State{Items: []cart.Item{sampleItem("item_1", "p1", 1)}, SessionID: "cart_1_abc"}, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	newer, err := encodePayload(State{Items: []cart.Item{sampleItem("item_1", "p1", 4)}, SessionID: "cart_1_abc"}, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, primary.Set(ctx, "nuxt-cart:cart_1_abc", older))
	require.NoError(t, fallback.Set(ctx, "nuxt-cart:cart_1_abc", newer))

	res, err := newTestService(primary, fallback).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, enums.StorageBackendFallback, res.Backend)
	require.Len(t, res.State.Items, 1)
	assert.Equal(t, 4, res.State.Items[0].Quantity)
}

func TestLoadEmptyAndUnreadable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	res, err := NewService(NewMemoryStorage(0), nil, Options{}, nil).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.State.Items)
	assert.Regexp(t, `^cart_\d+_[a-z0-9]+$`, res.State.SessionID)
	assert.Equal(t, enums.StorageBackendNone, res.Backend)

	primary := NewMemoryStorage(0)
	require.NoError(t, primary.Set(ctx, "nuxt-cart:cart_1_abc", "{{{"))
	res, err = newTestService(primary, nil).Load(ctx)
	require.NoError(t, err)
	assert.True(t, res.Corrupt)
	assert.Empty(t, res.State.Items)
	assert.Equal(t, "cart_1_abc", res.State.SessionID)
}

func TestLoadFailsOnlyWhenNoBackendAnswers(t *testing.T) {
	t.Parallel()
	primary := newFlakyStorage()
	primary.failGet = errors.New("db down")
	fallback := newFlakyStorage()
	fallback.failGet = errors.New("redis down")

	res, err := newTestService(primary, fallback).Load(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStorage))
	assert.Empty(t, res.State.Items)

	fallback.failGet = nil
	_, err = newTestService(primary, fallback).Load(context.Background())
	require.NoError(t, err)
}

func TestClearRemovesEverywhereAndCombinesErrors(t *testing.T) {
	t.Parallel()
	primary := newFlakyStorage()
	fallback := newFlakyStorage()
	svc := newTestService(primary, fallback)
	ctx := context.Background()

	require.NoError(t, primary.Set(ctx, svc.Key(), "x"))
	require.NoError(t, fallback.Set(ctx, svc.Key(), "y"))
	require.NoError(t, svc.Clear(ctx))
	_, err := primary.MemoryStorage.Get(ctx, svc.Key())
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = fallback.MemoryStorage.Get(ctx, svc.Key())
	assert.ErrorIs(t, err, ErrKeyNotFound)

	primary.failDel = errors.New("db down")
	fallback.failDel = errors.New("redis down")
	err = svc.Clear(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Contains(t, err.Error(), "redis down")
}

func TestRecoverWipesCorruptPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	primary := NewMemoryStorage(0)
	fallback := NewMemoryStorage(0)
	svc := newTestService(primary, fallback)

	require.NoError(t, primary.Set(ctx, svc.Key(), "corrupt"))
	good, err := encodePayload(State{Items: []cart.Item{sampleItem("item_1", "p1", 2)}, SessionID: "cart_1_abc"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, fallback.Set(ctx, svc.Key(), good))

	res, err := svc.Recover(ctx)
	require.NoError(t, err)
	require.Len(t, res.State.Items, 1)

	stored, err := primary.Get(ctx, svc.Key())
	require.NoError(t, err)
	_, _, err = decodePayload(stored)
	assert.NoError(t, err)
}

func TestScheduleSaveWritesFinalStateAndCloseFlushes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	primary := newFlakyStorage()
	svc := newTestService(primary, nil)

	for qty := 1; qty <= 5; qty++ {
		svc.ScheduleSave(State{Items: []cart.Item{sampleItem("item_1", "p1", qty)}, SessionID: "cart_1_abc"})
	}
	require.Eventually(t, func() bool {
		primary.mu.Lock()
		defer primary.mu.Unlock()
		return primary.setCalls == 1
	}, time.Second, 5*time.Millisecond)

	res, err := svc.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, res.State.Items, 1)
	assert.Equal(t, 5, res.State.Items[0].Quantity)

	svc.ScheduleSave(State{SessionID: "cart_1_abc"})
	require.NoError(t, svc.Close(context.Background()))
	assert.False(t, svc.SavePending())
}

// gatedStorage blocks its first Set until release is closed.
type gatedStorage struct {
	*MemoryStorage
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStorage() *gatedStorage {
	return &gatedStorage{
		MemoryStorage: NewMemoryStorage(0),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (g *gatedStorage) Set(ctx context.Context, key, value string) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStorage.Set(ctx, key, value)
}

func TestClearWaitsForInFlightScheduledWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	primary := newGatedStorage()
	svc := NewService(primary, nil, Options{SessionID: "cart_1_abc", Debounce: 5 * time.Millisecond}, nil)

	svc.ScheduleSave(State{Items: []cart.Item{sampleItem("item_1", "p1", 2)}, SessionID: "cart_1_abc"})
	select {
	case <-primary.entered:
	case <-time.After(time.Second):
		t.Fatal("scheduled write never started")
	}

	cleared := make(chan error, 1)
	go func() { cleared <- svc.Clear(ctx) }()
	select {
	case err := <-cleared:
		t.Fatalf("clear returned while a write was in flight: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(primary.release)
	require.NoError(t, <-cleared)

	res, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.State.Items)
	assert.Equal(t, enums.StorageBackendNone, res.Backend)
	require.NoError(t, svc.Close(ctx))
}

func TestSaveNowSupersedesPendingWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	primary := newFlakyStorage()
	svc := NewService(primary, nil, Options{SessionID: "cart_1_abc", Debounce: time.Hour}, nil)

	svc.ScheduleSave(State{Items: []cart.Item{sampleItem("item_1", "p1", 1)}, SessionID: "cart_1_abc"})
	require.NoError(t, svc.SaveNow(ctx, State{Items: []cart.Item{sampleItem("item_1", "p1", 3)}, SessionID: "cart_1_abc"}))
	assert.False(t, svc.SavePending())

	require.NoError(t, svc.Close(ctx))
	assert.False(t, svc.ScheduleSave(State{SessionID: "cart_1_abc"}))
	assert.Equal(t, 1, primary.setCalls)

	res, err := svc.Load(ctx)
	require.NoError(t, err)
	require.Len(t, res.State.Items, 1)
	assert.Equal(t, 3, res.State.Items[0].Quantity)
}
