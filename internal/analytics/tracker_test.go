package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (m *memorySink) Send(_ context.Context, events []Event) error {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, append([]Event(nil), events...))
	return nil
}

func (m *memorySink) sent() [][]Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Event(nil), m.batches...)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestTracker(sink Sink, opts Options) (*Tracker, *testClock) {
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = clock.now
	if opts.SessionID == "" {
		opts.SessionID = "cart_1_abc"
	}
	return NewTracker(sink, opts, nil), clock
}

func soap() cart.Product {
	return cart.Product{ID: "p1", Name: "Lavender Soap", Price: 10.99, Stock: 5, Category: "bath"}
}

func totals(subtotal string, count int) Totals {
	return Totals{Subtotal: decimal.RequireFromString(subtotal), ItemCount: count}
}

func TestTrackEventsCarryProductAndTotals(t *testing.T) {
	tr, _ := newTestTracker(nil, Options{UserID: "u1"})

	added := tr.TrackAddToCart(soap(), 2, totals("21.98", 2))
	assert.Equal(t, enums.CartEventAddToCart, added.Type)
	assert.Equal(t, "cart_1_abc", added.SessionID)
	assert.Equal(t, "u1", added.UserID)
	assert.Equal(t, "p1", added.ProductID)
	assert.Equal(t, 21.98, added.Value)
	assert.Equal(t, 21.98, added.CartTotal)
	assert.Equal(t, 2, added.CartItemCount)
	assert.Equal(t, "bath", added.Metadata["productCategory"])
	assert.Regexp(t, `^event_\d+_[a-z0-9]+$`, added.ID)

	updated := tr.TrackQuantityUpdate(soap(), 2, 5, totals("54.95", 5))
	assert.Equal(t, 2, updated.PreviousQuantity)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, 3, updated.Metadata["quantityChange"])

	removed := tr.TrackRemoveFromCart(soap(), 5, totals("0", 0))
	assert.Equal(t, 54.95, removed.Value)
	assert.Equal(t, 0, removed.CartItemCount)

	view := tr.TrackCartView(totals("0", 0))
	assert.Empty(t, view.ProductID)
	checkout := tr.TrackCheckoutStart(totals("0", 0))
	assert.Equal(t, enums.CartEventCheckoutStart, checkout.Type)

	assert.Len(t, tr.Pending(), 5)
	assert.Len(t, tr.EventsForProduct("p1"), 3)
	assert.Len(t, tr.EventsByType(enums.CartEventViewCart), 1)
}

func TestBufferEvictsOldest(t *testing.T) {
	tr, _ := newTestTracker(nil, Options{BufferSize: 3})
	for i := 1; i <= 5; i++ {
		tr.TrackAddToCart(soap(), i, totals("1", i))
	}
	pending := tr.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, 3, pending[0].Quantity)
	assert.Equal(t, 5, pending[2].Quantity)
	assert.Equal(t, 2, tr.Evicted())
}

func TestFlushDeliversAndClears(t *testing.T) {
	sink := &memorySink{}
	tr, _ := newTestTracker(sink, Options{})
	tr.TrackAddToCart(soap(), 1, totals("10.99", 1))
	tr.TrackCartView(totals("10.99", 1))

	n, err := tr.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, tr.Pending())
	require.Len(t, sink.sent(), 1)

	n, err = tr.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sink.sent(), 1, "empty buffer is not sent")
}

func TestFlushFailureKeepsEvents(t *testing.T) {
	sink := &memorySink{err: errors.New("unavailable")}
	tr, _ := newTestTracker(sink, Options{})
	tr.TrackAddToCart(soap(), 1, totals("10.99", 1))

	_, err := tr.Flush(context.Background())
	require.Error(t, err)
	assert.Len(t, tr.Pending(), 1)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	n, err := tr.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentFlushIsNoOpAndKeepsNewEvents(t *testing.T) {
	sink := &memorySink{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	tr, _ := newTestTracker(sink, Options{})
	tr.TrackAddToCart(soap(), 1, totals("10.99", 1))

	done := make(chan int, 1)
	go func() {
		n, _ := tr.Flush(context.Background())
		done <- n
	}()
	<-sink.entered

	n, err := tr.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	tr.TrackCartView(totals("10.99", 1))
	close(sink.block)
	assert.Equal(t, 1, <-done)

	pending := tr.Pending()
	require.Len(t, pending, 1, "events recorded during a flush stay pending")
	assert.Equal(t, enums.CartEventViewCart, pending[0].Type)
}

func TestAbandonmentFiresOnceForIdleNonEmptyCart(t *testing.T) {
	tr, clock := newTestTracker(nil, Options{AbandonmentTimeout: 30 * time.Minute})
	tr.InitializeCartSession("")
	tr.TrackAddToCart(soap(), 1, totals("10.99", 1))

	_, fired := tr.CheckAbandonment(clock.now().Add(10*time.Minute), totals("10.99", 1))
	assert.False(t, fired)
	_, fired = tr.CheckAbandonment(clock.now().Add(31*time.Minute), totals("0", 0))
	assert.False(t, fired, "empty carts are not abandoned")

	e, fired := tr.CheckAbandonment(clock.now().Add(31*time.Minute), totals("10.99", 1))
	require.True(t, fired)
	assert.Equal(t, enums.CartEventAbandonCart, e.Type)
	assert.Equal(t, "timeout", e.Metadata["abandonmentReason"])

	_, fired = tr.CheckAbandonment(clock.now().Add(90*time.Minute), totals("10.99", 1))
	assert.False(t, fired)

	clock.advance(2 * time.Hour)
	tr.TrackCartView(totals("10.99", 1))
	_, fired = tr.CheckAbandonment(clock.now().Add(31*time.Minute), totals("10.99", 1))
	assert.True(t, fired, "activity re-arms abandonment")
	assert.Len(t, tr.EventsByType(enums.CartEventAbandonCart), 2)
}

func TestSessionLifecycleAndSummary(t *testing.T) {
	sink := &memorySink{}
	tr, clock := newTestTracker(sink, Options{})

	start := tr.InitializeCartSession("cart_2_next")
	assert.Equal(t, "cart_2_next", start.SessionID)
	assert.Equal(t, true, start.Metadata["sessionStart"])

	tr.TrackAddToCart(soap(), 2, totals("21.98", 2))
	other := cart.Product{ID: "p2", Name: "Candle", Price: 5}
	tr.TrackAddToCart(other, 1, totals("26.98", 3))
	tr.TrackRemoveFromCart(other, 1, totals("21.98", 2))
	clock.advance(90 * time.Second)

	s := tr.Summary()
	assert.Equal(t, "cart_2_next", s.SessionID)
	assert.Equal(t, 4, s.TotalEvents)
	assert.Equal(t, 2, s.AddToCartEvents)
	assert.Equal(t, 1, s.RemoveFromCartEvents)
	assert.Equal(t, 1, s.ViewCartEvents)
	assert.Equal(t, 2, s.UniqueProducts)
	assert.Equal(t, 26.98, s.TotalValueAdded)
	assert.Equal(t, int64(90_000), s.SessionDurationMs)

	require.NoError(t, tr.EndCartSession(context.Background(), EndReasonAbandonment, totals("21.98", 2)))
	assert.Empty(t, tr.Pending())
	batches := sink.sent()
	require.Len(t, batches, 1)
	last := batches[0][len(batches[0])-1]
	assert.Equal(t, enums.CartEventAbandonCart, last.Type)
	assert.Equal(t, int64(90_000), last.Metadata["timeSpent"])
}

func TestRunFlushesUntilCanceled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	sink := &memorySink{}
	tr := NewTracker(sink, Options{SessionID: "cart_1_abc", SyncInterval: 5 * time.Millisecond}, nil)
	tr.TrackAddToCart(soap(), 1, totals("10.99", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, func() Totals { return totals("10.99", 1) }) }()

	require.Eventually(t, func() bool { return len(sink.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
