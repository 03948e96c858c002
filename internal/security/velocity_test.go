package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalVelocityBurstsThenThrottles(t *testing.T) {
	t.Parallel()
	l := NewLocalVelocity(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "cart_1_a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "cart_1_a")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "cart_2_b")
	assert.True(t, ok, "sessions are limited independently")
}

type fakeWindow struct {
	counts map[string]int64
	err    error
	scope  string
}

func (f *fakeWindow) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.scope = scope
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRedisVelocity(t *testing.T) {
	t.Parallel()
	store := &fakeWindow{counts: map[string]int64{}}
	r := NewRedisVelocity(store, 2, time.Minute)
	ctx := context.Background()

	ok, err := r.Allow(ctx, "cart_1_a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cart_velocity:cart_1_a", store.scope)
	ok, _ = r.Allow(ctx, "cart_1_a")
	assert.True(t, ok)
	ok, _ = r.Allow(ctx, "cart_1_a")
	assert.False(t, ok)

	failing := NewRedisVelocity(&fakeWindow{err: errors.New("down")}, 2, 0)
	ok, err = failing.Allow(ctx, "cart_1_a")
	assert.Error(t, err)
	assert.True(t, ok, "fails open")
}
