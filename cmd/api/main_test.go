package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
	"github.com/angelmondragon/packfinderz-cart/internal/persistence"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
)

func TestCartOptionsCarryConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Persistence.StorageKey = "nuxt-cart"
	cfg.Persistence.SaveDebounce = 2 * time.Second
	cfg.Security.Enabled = false
	cfg.Security.MaxQuantity = 40
	cfg.Lock.TTL = 10 * time.Minute
	cfg.Validation.RetryBackoff = time.Second

	opts := cartOptions(cfg, "cart_1_abc")
	assert.Equal(t, "cart_1_abc", opts.SessionID)
	assert.Equal(t, "nuxt-cart", opts.Persistence.StorageKey)
	assert.Equal(t, 2*time.Second, opts.Persistence.Debounce)
	assert.True(t, opts.Security.Disabled)
	assert.Equal(t, 40, opts.Security.MaxQuantity)
	assert.Equal(t, 10*time.Minute, opts.LockTTL)
	assert.Equal(t, time.Second, opts.RetryBackoff)
}

func TestRegistryBuildsFromCartOptions(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sessions.MaintainInterval = time.Minute
	deps := coordinator.Dependencies{Primary: persistence.NewMemoryStorage(0)}

	registry, err := coordinator.NewRegistry(func(_ context.Context, sessionID string) (*coordinator.Coordinator, error) {
		return coordinator.New(deps, cartOptions(cfg, sessionID), nil)
	}, coordinator.RegistryOptions{MaintainInterval: cfg.Sessions.MaintainInterval}, nil)
	require.NoError(t, err)

	c, err := registry.Create(context.Background())
	require.NoError(t, err)
	assert.True(t, c.Initialized())
	require.NoError(t, registry.Close(context.Background()))
}

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(context.Canceled))
	assert.NoError(t, ignoreCanceled(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, ignoreCanceled(boom), boom)
}
