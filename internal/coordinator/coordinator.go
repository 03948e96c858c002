package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-cart/internal/advanced"
	"github.com/angelmondragon/packfinderz-cart/internal/analytics"
	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/catalog"
	"github.com/angelmondragon/packfinderz-cart/internal/persistence"
	"github.com/angelmondragon/packfinderz-cart/internal/security"
	"github.com/angelmondragon/packfinderz-cart/internal/validation"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
)

const DefaultRetryBackoff = 500 * time.Millisecond

// Dependencies are the collaborators shared by every cart in the process.
type Dependencies struct {
	Primary  persistence.Storage
	Fallback persistence.Storage
	// Validator is optional; without it validation reports nothing.
	Validator   *validation.Service
	Recommender catalog.Recommender
	Sink        analytics.Sink
	Velocity    security.VelocityLimiter
	Metrics     *metrics.CartMetrics
}

// Options configure a single cart. Module options are passed through; the
// session id and clock are filled in by New.
type Options struct {
	SessionID    string
	Persistence  persistence.Options
	Analytics    analytics.Options
	Security     security.Options
	Advanced     advanced.Options
	LockTTL      time.Duration
	RetryBackoff time.Duration
	Now          func() time.Time
}

// State is the user-visible cart.
type State struct {
	Items      []cart.Item     `json:"items"`
	SessionID  string          `json:"sessionId"`
	Loading    bool            `json:"loading"`
	Error      string          `json:"error,omitempty"`
	LastSyncAt *time.Time      `json:"lastSyncAt,omitempty"`
	ItemCount  int             `json:"itemCount"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Lock       cart.LockStatus `json:"lock"`
}

// Coordinator is the facade over one cart. Core failures are returned to
// the caller; every other module's failure is absorbed and recorded.
type Coordinator struct {
	core      *cart.Core
	store     *persistence.Service
	validator *validation.Service
	tracker   *analytics.Tracker
	guard     *security.Guard
	advanced  *advanced.Service
	metrics   *metrics.CartMetrics
	logg      *logger.Logger
	opts      Options

	initOnce    sync.Once
	initialized atomic.Bool
	loading     atomic.Bool
	closed      atomic.Bool

	mu         sync.RWMutex
	lastErr    string
	lastSyncAt *time.Time
	lastUsed   time.Time
}

func New(deps Dependencies, opts Options, logg *logger.Logger) (*Coordinator, error) {
	if deps.Primary == nil {
		return nil, fmt.Errorf("primary cart storage required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = cart.DefaultLockTTL
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		sessionID = cart.NewSessionID(opts.Now())
	}
	opts.SessionID = sessionID

	c := &Coordinator{
		core:      cart.NewCore(cart.WithSessionID(sessionID), cart.WithClock(opts.Now)),
		validator: deps.Validator,
		metrics:   deps.Metrics,
		logg:      logg,
		opts:      opts,
		lastUsed:  opts.Now(),
	}

	storeOpts := opts.Persistence
	storeOpts.SessionID = sessionID
	storeOpts.Now = opts.Now
	onError := storeOpts.OnScheduledError
	storeOpts.OnScheduledError = func(err error) {
		c.reconcile(context.Background(), "scheduled_save", Result{Module: ModulePersistence, Err: err})
		if onError != nil {
			onError(err)
		}
	}
	c.store = persistence.NewService(deps.Primary, deps.Fallback, storeOpts, logg)

	trackerOpts := opts.Analytics
	trackerOpts.SessionID = sessionID
	trackerOpts.Now = opts.Now
	c.tracker = analytics.NewTracker(deps.Sink, trackerOpts, logg)

	guardOpts := opts.Security
	guardOpts.Now = opts.Now
	if guardOpts.Velocity == nil {
		guardOpts.Velocity = deps.Velocity
	}
	c.guard = security.NewGuard(guardOpts, logg)

	advOpts := opts.Advanced
	advOpts.Now = opts.Now
	c.advanced = advanced.NewService(deps.Recommender, advOpts, logg)
	return c, nil
}

// InitializeCart hydrates the cart from storage and opens the analytics
// session. Only the first call does any work.
func (c *Coordinator) InitializeCart(ctx context.Context) State {
	c.initOnce.Do(func() {
		c.loading.Store(true)
		defer c.loading.Store(false)

		ctx := c.logCtx(ctx)
		result, err := c.store.Load(ctx)
		if err != nil {
			c.reconcile(ctx, "initialize", Result{Module: ModulePersistence, Err: err})
		}
		snap := c.core.Replace(cart.Snapshot{Items: result.State.Items, SessionID: result.State.SessionID})
		c.mu.Lock()
		c.lastSyncAt = result.State.LastSyncAt
		c.mu.Unlock()

		c.tracker.InitializeCartSession(snap.SessionID)
		c.initialized.Store(true)
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"item_count": snap.ItemCount(),
			"backend":    result.Backend.String(),
		}), "cart.initialized")
	})
	return c.State()
}

func (c *Coordinator) Initialized() bool {
	return c.initialized.Load()
}

func (c *Coordinator) Closed() bool {
	return c.closed.Load()
}

// Close flushes pending writes and analytics. Only the first call does any
// work; mutations after Close write through to storage.
func (c *Coordinator) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx = c.logCtx(ctx)
	totals := analytics.TotalsFrom(c.core.Snapshot())
	err := c.store.Close(ctx)
	if endErr := c.tracker.EndCartSession(ctx, analytics.EndReasonNavigation, totals); endErr != nil {
		c.reconcile(ctx, "close", Result{Module: ModuleAnalytics, Err: endErr})
	}
	return err
}

// Maintain runs the periodic per-cart work: abandonment detection and an
// analytics flush.
func (c *Coordinator) Maintain(ctx context.Context) {
	if !c.Initialized() {
		return
	}
	ctx = c.logCtx(ctx)
	c.tracker.CheckAbandonment(c.opts.Now(), analytics.TotalsFrom(c.core.Snapshot()))
	if _, err := c.tracker.Flush(ctx); err != nil {
		c.reconcile(ctx, "analytics_flush", Result{Module: ModuleAnalytics, Err: err})
	}
}

func (c *Coordinator) State() State {
	snap := c.core.Snapshot()
	c.mu.RLock()
	lastErr := c.lastErr
	var lastSync *time.Time
	if c.lastSyncAt != nil {
		t := *c.lastSyncAt
		lastSync = &t
	}
	c.mu.RUnlock()
	return State{
		Items:      snap.Items,
		SessionID:  snap.SessionID,
		Loading:    c.loading.Load(),
		Error:      lastErr,
		LastSyncAt: lastSync,
		ItemCount:  snap.ItemCount(),
		Subtotal:   snap.Subtotal(),
		Lock:       c.core.LockStatus(),
	}
}

func (c *Coordinator) Items() []cart.Item {
	return c.core.Items()
}

func (c *Coordinator) SessionID() string {
	return c.core.SessionID()
}

func (c *Coordinator) Loading() bool {
	return c.loading.Load()
}

// Error is the last absorbed side-effect failure, or "".
func (c *Coordinator) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Coordinator) ItemCount() int {
	return c.core.ItemCount()
}

func (c *Coordinator) Subtotal() decimal.Decimal {
	return c.core.Subtotal()
}

func (c *Coordinator) IsEmpty() bool {
	return c.core.IsEmpty()
}

func (c *Coordinator) IsInCart(productID string) bool {
	return c.core.IsInCart(productID)
}

func (c *Coordinator) ItemByProductID(productID string) (cart.Item, bool) {
	return c.core.ItemByProductID(productID)
}

func (c *Coordinator) Item(itemID string) (cart.Item, bool) {
	return c.core.Item(itemID)
}

// Guard exposes the security module's state for diagnostics.
func (c *Coordinator) Guard() *security.Guard {
	return c.guard
}

func (c *Coordinator) AnalyticsSummary() analytics.Summary {
	return c.tracker.Summary()
}

// LastUsed reports when the cart last served a call.
func (c *Coordinator) LastUsed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUsed
}

func (c *Coordinator) touch() {
	c.mu.Lock()
	c.lastUsed = c.opts.Now()
	c.mu.Unlock()
}

func (c *Coordinator) logCtx(ctx context.Context) context.Context {
	return c.logg.WithSessionID(ctx, c.core.SessionID())
}
