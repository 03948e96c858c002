package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// VelocityLimiter reports whether a session may perform another mutation.
type VelocityLimiter interface {
	Allow(ctx context.Context, sessionID string) (bool, error)
}

const maxTrackedSessions = 10_000

// LocalVelocity is an in-process token bucket per session.
type LocalVelocity struct {
	limit  rate.Limit
	burst  int
	mu     sync.Mutex
	bucket map[string]*rate.Limiter
}

// NewLocalVelocity allows limit operations per window per session.
func NewLocalVelocity(limit int, window time.Duration) *LocalVelocity {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LocalVelocity{
		limit:  rate.Every(window / time.Duration(limit)),
		burst:  limit,
		bucket: make(map[string]*rate.Limiter),
	}
}

func (l *LocalVelocity) Allow(_ context.Context, sessionID string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.bucket[sessionID]
	if !ok {
		if len(l.bucket) >= maxTrackedSessions {
			l.bucket = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.bucket[sessionID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow(), nil
}

type fixedWindow interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RedisVelocity shares a fixed-window counter per session across instances.
type RedisVelocity struct {
	store  fixedWindow
	limit  int64
	window time.Duration
}

func NewRedisVelocity(store fixedWindow, limit int, window time.Duration) *RedisVelocity {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisVelocity{store: store, limit: int64(limit), window: window}
}

func (r *RedisVelocity) Allow(ctx context.Context, sessionID string) (bool, error) {
	allowed, _, err := r.store.FixedWindowAllow(ctx, "cart_velocity:"+sessionID, r.limit, r.window)
	if err != nil {
		return true, err
	}
	return allowed, nil
}
