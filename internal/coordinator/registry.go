package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-cart/internal/security"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const DefaultMaintainInterval = time.Minute

type RegistryOptions struct {
	// MaintainInterval paces Run.
	MaintainInterval time.Duration
	// IdleTimeout evicts carts unused for this long during Run. Zero keeps
	// carts until Close.
	IdleTimeout time.Duration
	Now         func() time.Time
}

// Factory builds the coordinator for sessionID. An empty id asks for a new
// session.
type Factory func(ctx context.Context, sessionID string) (*Coordinator, error)

// Registry serves many carts from one process, one coordinator per session.
type Registry struct {
	factory Factory
	logg    *logger.Logger
	opts    RegistryOptions

	mu    sync.Mutex
	carts map[string]*Coordinator
}

func NewRegistry(factory Factory, opts RegistryOptions, logg *logger.Logger) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("coordinator factory required")
	}
	if opts.MaintainInterval <= 0 {
		opts.MaintainInterval = DefaultMaintainInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Registry{
		factory: factory,
		logg:    logg,
		opts:    opts,
		carts:   make(map[string]*Coordinator),
	}, nil
}

// Get returns the cart for sessionID, hydrating it from storage on first use.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Coordinator, error) {
	if !security.IsValidSessionID(sessionID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart session id")
	}
	r.mu.Lock()
	c, ok := r.carts[sessionID]
	if !ok || c.Closed() {
		var err error
		c, err = r.factory(ctx, sessionID)
		if err != nil {
			r.mu.Unlock()
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
		}
		r.carts[sessionID] = c
	}
	// Evict checks LastUsed under the same lock, so a cart handed out here
	// is not idle for the sweep that follows.
	c.touch()
	r.mu.Unlock()

	c.InitializeCart(ctx)
	return c, nil
}

// Create starts a new session.
func (r *Registry) Create(ctx context.Context) (*Coordinator, error) {
	c, err := r.factory(ctx, "")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
	}
	r.mu.Lock()
	r.carts[c.SessionID()] = c
	r.mu.Unlock()

	c.InitializeCart(ctx)
	r.logg.Info(r.logg.WithSessionID(ctx, c.SessionID()), "cart.session.created")
	return c, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}

// Evict closes and forgets carts idle since before cutoff.
func (r *Registry) Evict(ctx context.Context, cutoff time.Time) (int, error) {
	var idle []*Coordinator
	r.mu.Lock()
	for id, c := range r.carts {
		if c.LastUsed().Before(cutoff) {
			idle = append(idle, c)
			delete(r.carts, id)
		}
	}
	r.mu.Unlock()

	var errs error
	for _, c := range idle {
		errs = multierr.Append(errs, c.Close(ctx))
	}
	return len(idle), errs
}

// Close flushes every cart.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	carts := make([]*Coordinator, 0, len(r.carts))
	for _, c := range r.carts {
		carts = append(carts, c)
	}
	r.carts = make(map[string]*Coordinator)
	r.mu.Unlock()

	var errs error
	for _, c := range carts {
		errs = multierr.Append(errs, c.Close(ctx))
	}
	return errs
}

// Run maintains every cart each interval, evicting idle ones, until ctx is
// canceled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.MaintainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.mu.Lock()
			carts := make([]*Coordinator, 0, len(r.carts))
			for _, c := range r.carts {
				carts = append(carts, c)
			}
			r.mu.Unlock()
			for _, c := range carts {
				c.Maintain(ctx)
			}
			if r.opts.IdleTimeout > 0 {
				evicted, err := r.Evict(ctx, r.opts.Now().Add(-r.opts.IdleTimeout))
				if err != nil {
					r.logg.Warn(r.logg.WithError(ctx, err), "cart.registry.evict_failed")
				}
				if evicted > 0 {
					r.logg.Info(r.logg.WithField(ctx, "evicted", evicted), "cart.registry.evicted")
				}
			}
		}
	}
}
