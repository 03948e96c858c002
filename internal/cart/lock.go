package cart

import (
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

// DefaultLockTTL bounds how long a checkout can hold the cart.
const DefaultLockTTL = 30 * time.Minute

// LockStatus describes the checkout lock.
type LockStatus struct {
	Locked    bool      `json:"locked"`
	LockedAt  time.Time `json:"lockedAt,omitempty"`
	LockedBy  string    `json:"lockedBy,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

type lockState struct {
	held      bool
	lockedAt  time.Time
	lockedBy  string
	expiresAt time.Time
}

func (l lockState) live(now time.Time) bool {
	return l.held && now.Before(l.expiresAt)
}

func (l lockState) status() LockStatus {
	if !l.held {
		return LockStatus{}
	}
	return LockStatus{Locked: true, LockedAt: l.lockedAt, LockedBy: l.lockedBy, ExpiresAt: l.expiresAt}
}

// Lock freezes mutations while a checkout is in progress. The holder may
// re-lock to extend the window; anyone else gets CART_LOCKED.
func (c *Core) Lock(sessionID string, ttl time.Duration) (LockStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return LockStatus{}, pkgerrors.New(pkgerrors.CodeValidation, "session id is required to lock the cart")
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	now := c.now()
	if c.lock.live(now) && c.lock.lockedBy != sessionID {
		return c.lock.status(), c.lockedError()
	}
	c.lock = lockState{held: true, lockedAt: now, lockedBy: sessionID, expiresAt: now.Add(ttl)}
	return c.lock.status(), nil
}

// Unlock releases the lock. Only the holding session may release a live lock.
func (c *Core) Unlock(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lock.live(c.now()) {
		c.lock = lockState{}
		return nil
	}
	if c.lock.lockedBy != strings.TrimSpace(sessionID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cart is locked by another session")
	}
	c.lock = lockState{}
	return nil
}

// LockStatus reports the lock, releasing it first when expired.
func (c *Core) LockStatus() LockStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lock.held && !c.lock.live(c.now()) {
		c.lock = lockState{}
	}
	return c.lock.status()
}

func (c *Core) ensureUnlocked() error {
	now := c.now()
	if c.lock.held && !c.lock.live(now) {
		c.lock = lockState{}
	}
	if c.lock.held {
		return c.lockedError()
	}
	return nil
}

func (c *Core) lockedError() error {
	return pkgerrors.New(pkgerrors.CodeCartLocked, "cart is locked for checkout").
		WithDetails(map[string]any{"expires_at": c.lock.expiresAt})
}
