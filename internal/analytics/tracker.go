package analytics

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const (
	DefaultBufferSize         = 100
	DefaultHistorySize        = 500
	DefaultAbandonmentTimeout = 30 * time.Minute
	DefaultSyncInterval       = 5 * time.Minute
)

// EndReason explains why a session ended.
type EndReason string

const (
	EndReasonCheckout    EndReason = "checkout"
	EndReasonAbandonment EndReason = "abandonment"
	EndReasonNavigation  EndReason = "navigation"
)

type Options struct {
	SessionID          string
	UserID             string
	BufferSize         int
	HistorySize        int
	AbandonmentTimeout time.Duration
	SyncInterval       time.Duration
	Now                func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.AbandonmentTimeout <= 0 {
		o.AbandonmentTimeout = DefaultAbandonmentTimeout
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Tracker records cart events for one session. Pending events are bounded
// and evict the oldest entry when full; history keeps recent events for
// in-process queries.
type Tracker struct {
	sink Sink
	opts Options
	logg *logger.Logger

	mu           sync.Mutex
	sessionID    string
	sessionStart time.Time
	lastActivity time.Time
	abandoned    bool
	seq          uint64
	pending      []Event
	history      []Event
	evicted      int

	flushing atomic.Bool
}

// NewTracker builds a tracker. A nil sink discards flushed events.
func NewTracker(sink Sink, opts Options, logg *logger.Logger) *Tracker {
	if sink == nil {
		sink = NopSink{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	opts = opts.withDefaults()
	return &Tracker{
		sink:      sink,
		opts:      opts,
		logg:      logg,
		sessionID: strings.TrimSpace(opts.SessionID),
	}
}

func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// InitializeCartSession starts (or restarts) the analytics session.
func (t *Tracker) InitializeCartSession(sessionID string) Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.opts.Now()
	if id := strings.TrimSpace(sessionID); id != "" {
		t.sessionID = id
	}
	t.sessionStart = now
	t.lastActivity = now
	t.abandoned = false
	return t.recordLocked(Event{
		Type:     enums.CartEventViewCart,
		Metadata: map[string]any{"sessionStart": true},
	}, now)
}

// EndCartSession records abandonment when asked to and flushes what is pending.
func (t *Tracker) EndCartSession(ctx context.Context, reason EndReason, totals Totals) error {
	if reason == EndReasonAbandonment {
		t.mu.Lock()
		now := t.opts.Now()
		t.recordLocked(t.abandonEvent(now, totals), now)
		t.abandoned = true
		t.mu.Unlock()
	}
	_, err := t.Flush(ctx)
	return err
}

func (t *Tracker) TrackAddToCart(product cart.Product, quantity int, totals Totals) Event {
	return t.record(productEvent(enums.CartEventAddToCart, product, quantity, totals))
}

func (t *Tracker) TrackRemoveFromCart(product cart.Product, quantity int, totals Totals) Event {
	return t.record(productEvent(enums.CartEventRemoveFromCart, product, quantity, totals))
}

func (t *Tracker) TrackQuantityUpdate(product cart.Product, oldQuantity, newQuantity int, totals Totals) Event {
	e := productEvent(enums.CartEventUpdateQuantity, product, newQuantity, totals)
	e.PreviousQuantity = oldQuantity
	e.Metadata["oldQuantity"] = oldQuantity
	e.Metadata["newQuantity"] = newQuantity
	e.Metadata["quantityChange"] = newQuantity - oldQuantity
	return t.record(e)
}

func (t *Tracker) TrackCartView(totals Totals) Event {
	e := cartEvent(enums.CartEventViewCart, totals)
	e.Metadata = map[string]any{"viewSource": "direct"}
	return t.record(e)
}

func (t *Tracker) TrackCheckoutStart(totals Totals) Event {
	return t.record(cartEvent(enums.CartEventCheckoutStart, totals))
}

func productEvent(kind enums.CartEventType, p cart.Product, quantity int, totals Totals) Event {
	e := cartEvent(kind, totals)
	e.ProductID = p.ID
	e.Quantity = quantity
	e.Value = lineValue(p.Price, quantity)
	e.Metadata = productMetadata(p)
	return e
}

func cartEvent(kind enums.CartEventType, totals Totals) Event {
	return Event{
		Type:          kind,
		CartTotal:     totals.Subtotal.InexactFloat64(),
		CartItemCount: totals.ItemCount,
		Value:         totals.Subtotal.InexactFloat64(),
	}
}

func (t *Tracker) record(e Event) Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.opts.Now()
	t.abandoned = false
	return t.recordLocked(e, now)
}

func (t *Tracker) recordLocked(e Event, now time.Time) Event {
	t.seq++
	e.seq = t.seq
	e.ID = cart.NewID(cart.PrefixEvent, now)
	e.SessionID = t.sessionID
	e.UserID = t.opts.UserID
	e.Timestamp = now
	if t.sessionStart.IsZero() {
		t.sessionStart = now
	}
	t.lastActivity = now

	t.pending = append(t.pending, e)
	if over := len(t.pending) - t.opts.BufferSize; over > 0 {
		t.pending = append([]Event(nil), t.pending[over:]...)
		t.evicted += over
	}
	t.history = append(t.history, e)
	if over := len(t.history) - t.opts.HistorySize; over > 0 {
		t.history = append([]Event(nil), t.history[over:]...)
	}
	return e
}

func (t *Tracker) abandonEvent(now time.Time, totals Totals) Event {
	e := cartEvent(enums.CartEventAbandonCart, totals)
	e.Metadata = map[string]any{
		"timeSpent":         now.Sub(t.sessionStart).Milliseconds(),
		"abandonmentReason": "timeout",
	}
	return e
}

// CheckAbandonment records one abandon_cart event once a non-empty cart has
// been idle for the abandonment timeout. It reports whether it fired.
func (t *Tracker) CheckAbandonment(now time.Time, totals Totals) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.abandoned || totals.ItemCount == 0 || t.lastActivity.IsZero() {
		return Event{}, false
	}
	if now.Sub(t.lastActivity) < t.opts.AbandonmentTimeout {
		return Event{}, false
	}
	last := t.lastActivity
	e := t.recordLocked(t.abandonEvent(now, totals), now)
	// Abandonment is not activity.
	t.lastActivity = last
	t.abandoned = true
	return e, true
}

// Flush sends pending events to the sink. Events stay pending on failure.
// A flush already in flight turns concurrent calls into no-ops.
func (t *Tracker) Flush(ctx context.Context) (int, error) {
	if !t.flushing.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer t.flushing.Store(false)

	t.mu.Lock()
	batch := append([]Event(nil), t.pending...)
	t.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}

	if err := t.sink.Send(ctx, batch); err != nil {
		t.logg.Warn(t.logg.WithError(t.logg.WithFields(ctx, map[string]any{
			"session_id":  t.SessionID(),
			"event_count": len(batch),
		}), err), "cart.analytics.flush_failed")
		return 0, err
	}

	last := batch[len(batch)-1].seq
	t.mu.Lock()
	var kept []Event
	for _, e := range t.pending {
		if e.seq > last {
			kept = append(kept, e)
		}
	}
	t.pending = kept
	t.mu.Unlock()
	return len(batch), nil
}

func (t *Tracker) Pending() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.pending...)
}

// Evicted counts events dropped from a full buffer before they were flushed.
func (t *Tracker) Evicted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evicted
}

func (t *Tracker) EventsByType(kind enums.CartEventType) []Event {
	return t.filter(func(e Event) bool { return e.Type == kind })
}

func (t *Tracker) EventsForProduct(productID string) []Event {
	return t.filter(func(e Event) bool { return e.ProductID == productID })
}

func (t *Tracker) filter(keep func(Event) bool) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := []Event{}
	for _, e := range t.history {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Summary aggregates the retained event history.
type Summary struct {
	SessionID            string                      `json:"sessionId"`
	TotalEvents          int                         `json:"totalEvents"`
	Counts               map[enums.CartEventType]int `json:"counts"`
	AddToCartEvents      int                         `json:"addToCartEvents"`
	RemoveFromCartEvents int                         `json:"removeFromCartEvents"`
	ViewCartEvents       int                         `json:"viewCartEvents"`
	UniqueProducts       int                         `json:"uniqueProducts"`
	TotalValueAdded      float64                     `json:"totalValueAdded"`
	SessionDurationMs    int64                       `json:"sessionDurationMs"`
	SessionStart         *time.Time                  `json:"sessionStart,omitempty"`
	LastActivity         *time.Time                  `json:"lastActivity,omitempty"`
	PendingEvents        int                         `json:"pendingEvents"`
}

func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		SessionID:     t.sessionID,
		TotalEvents:   len(t.history),
		Counts:        map[enums.CartEventType]int{},
		PendingEvents: len(t.pending),
	}
	products := map[string]struct{}{}
	var added float64
	for _, e := range t.history {
		s.Counts[e.Type]++
		if e.ProductID != "" {
			products[e.ProductID] = struct{}{}
		}
		if e.Type == enums.CartEventAddToCart {
			added += e.Value
		}
	}
	s.AddToCartEvents = s.Counts[enums.CartEventAddToCart]
	s.RemoveFromCartEvents = s.Counts[enums.CartEventRemoveFromCart]
	s.ViewCartEvents = s.Counts[enums.CartEventViewCart]
	s.UniqueProducts = len(products)
	s.TotalValueAdded = lineValue(added, 1)
	if !t.sessionStart.IsZero() {
		start := t.sessionStart
		s.SessionStart = &start
		s.SessionDurationMs = t.opts.Now().Sub(start).Milliseconds()
	}
	if !t.lastActivity.IsZero() {
		last := t.lastActivity
		s.LastActivity = &last
	}
	return s
}

// Run flushes and checks abandonment every sync interval until ctx is
// canceled. totals reports the live cart aggregates.
func (t *Tracker) Run(ctx context.Context, totals func() Totals) error {
	ticker := time.NewTicker(t.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if totals != nil {
				t.CheckAbandonment(t.opts.Now(), totals())
			}
			_, _ = t.Flush(ctx)
		}
	}
}
