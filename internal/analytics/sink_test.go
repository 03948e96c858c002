package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
)

func sampleEvents() []Event {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Event{
		{ID: "event_1_a", Type: enums.CartEventAddToCart, SessionID: "cart_1_abc", ProductID: "p1", Quantity: 2, Value: 21.98, CartTotal: 21.98, CartItemCount: 2, Timestamp: at, Metadata: map[string]any{"productName": "Soap"}},
		{ID: "event_2_b", Type: enums.CartEventUpdateQuantity, SessionID: "cart_1_abc", ProductID: "p1", Quantity: 3, PreviousQuantity: 2, Timestamp: at},
		{ID: "event_3_c", Type: enums.CartEventViewCart, SessionID: "cart_1_abc", Timestamp: at},
	}
}

func TestMultiSinkFansOutAndCombinesErrors(t *testing.T) {
	var calls []string
	ok := SinkFunc(func(context.Context, []Event) error { calls = append(calls, "ok"); return nil })
	bad := SinkFunc(func(context.Context, []Event) error { calls = append(calls, "bad"); return errors.New("down") })

	err := NewMultiSink(ok, nil, bad, bad).Send(context.Background(), sampleEvents())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"ok", "bad", "bad"}, calls)

	assert.IsType(t, NopSink{}, NewMultiSink())
	assert.NoError(t, NewMultiSink(nil).Send(context.Background(), nil))
}

func TestMultiSinkResendsOnlyToSinksThatFailed(t *testing.T) {
	ctx := context.Background()
	var okBatches, flakyBatches [][]string
	ids := func(events []Event) []string {
		out := make([]string, 0, len(events))
		for _, e := range events {
			out = append(out, e.ID)
		}
		return out
	}
	failures := 1
	ok := SinkFunc(func(_ context.Context, events []Event) error {
		okBatches = append(okBatches, ids(events))
		return nil
	})
	flaky := SinkFunc(func(_ context.Context, events []Event) error {
		flakyBatches = append(flakyBatches, ids(events))
		if failures > 0 {
			failures--
			return errors.New("publish timeout")
		}
		return nil
	})
	sink := NewMultiSink(ok, flaky)
	events := sampleEvents()

	require.Error(t, sink.Send(ctx, events))
	require.NoError(t, sink.Send(ctx, events))
	require.NoError(t, sink.Send(ctx, events))

	all := []string{"event_1_a", "event_2_b", "event_3_c"}
	assert.Equal(t, [][]string{all, all}, okBatches)
	assert.Equal(t, [][]string{all, all, all}, flakyBatches)
}

type fakePublishResult struct {
	id  string
	err error
}

func (r fakePublishResult) Get(context.Context) (string, error) { return r.id, r.err }

type fakePublisher struct {
	messages []*gcppubsub.Message
	err      error
	nilRes   bool
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	if p.nilRes {
		return nil
	}
	return fakePublishResult{id: "msg-1", err: p.err}
}

func TestPubSubSinkPublishesBatch(t *testing.T) {
	pub := &fakePublisher{}
	sink := newPubSubSink(pub, time.Second)

	require.NoError(t, sink.Send(context.Background(), sampleEvents()))
	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, "cart_1_abc", msg.Attributes["session_id"])
	assert.Equal(t, "3", msg.Attributes["event_count"])

	var decoded batchMessage
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	require.Len(t, decoded.Events, 3)
	assert.Equal(t, "event_2_b", decoded.Events[1].ID)

	require.NoError(t, sink.Send(context.Background(), nil))
	assert.Len(t, pub.messages, 1, "empty batches are skipped")
}

func TestPubSubSinkErrors(t *testing.T) {
	_, err := NewPubSubSink(nil, 0)
	require.Error(t, err)

	failing := newPubSubSink(&fakePublisher{err: errors.New("quota")}, 0)
	assert.Error(t, failing.Send(context.Background(), sampleEvents()))

	nilResult := newPubSubSink(&fakePublisher{nilRes: true}, 0)
	assert.Error(t, nilResult.Send(context.Background(), sampleEvents()))
}

type insertCall struct {
	table string
	rows  []*Row
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows any) error {
	f.calls = append(f.calls, insertCall{table: table, rows: rows.([]*Row)})
	idx := len(f.calls) - 1
	if idx < len(f.responses) {
		return f.responses[idx]
	}
	return nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond}
}

func TestBigQuerySinkMapsRows(t *testing.T) {
	fake := &fakeInserter{}
	sink, err := newBigQuerySink(fake, "cart_events", fastRetry())
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), sampleEvents()))
	require.Len(t, fake.calls, 1)
	rows := fake.calls[0].rows
	require.Len(t, rows, 3)
	assert.Equal(t, "cart_events", fake.calls[0].table)

	assert.Equal(t, "add_to_cart", rows[0].EventType)
	require.NotNil(t, rows[0].ProductID)
	assert.Equal(t, int64(2), *rows[0].Quantity)
	assert.True(t, rows[0].Metadata.Valid)
	assert.Nil(t, rows[0].PreviousQuantity)
	assert.Nil(t, rows[0].UserID)

	assert.Equal(t, int64(2), *rows[1].PreviousQuantity)
	assert.False(t, rows[1].Metadata.Valid)

	assert.Nil(t, rows[2].ProductID)
	assert.Nil(t, rows[2].Value)
}

func TestBigQuerySinkRetriesTransientErrors(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}}
	sink, err := newBigQuerySink(fake, "cart_events", fastRetry())
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), sampleEvents()))
	assert.Len(t, fake.calls, 2)
}

func TestBigQuerySinkStopsOnPermanentOrExhaustedErrors(t *testing.T) {
	permanent := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	sink, err := newBigQuerySink(permanent, "cart_events", fastRetry())
	require.NoError(t, err)
	require.Error(t, sink.Send(context.Background(), sampleEvents()))
	assert.Len(t, permanent.calls, 1)

	unavailable := status.Error(codes.Unavailable, "try later")
	exhausted := &fakeInserter{responses: []error{unavailable, unavailable, unavailable, unavailable}}
	sink, err = newBigQuerySink(exhausted, "cart_events", fastRetry())
	require.NoError(t, err)
	require.Error(t, sink.Send(context.Background(), sampleEvents()))
	assert.Len(t, exhausted.calls, 3)
}

func TestNewBigQuerySinkValidation(t *testing.T) {
	_, err := NewBigQuerySink(nil, "cart_events", RetryPolicy{})
	require.Error(t, err)
	_, err = newBigQuerySink(&fakeInserter{}, " ", RetryPolicy{})
	require.Error(t, err)
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"foo": "bar"})
	require.NoError(t, err)
	assert.True(t, nj.Valid)
	assert.JSONEq(t, `{"foo":"bar"}`, nj.JSONVal)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	nj, err = EncodeJSON(map[string]any{})
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	raw := json.RawMessage(`{"foo":"baz"}`)
	nj, err = EncodeJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), nj.JSONVal)

	_, err = EncodeJSON(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
