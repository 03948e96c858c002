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
)

type recordingWriter struct {
	mu     sync.Mutex
	writes []State
	err    error
}

func (r *recordingWriter) write(_ context.Context, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, state)
	return r.err
}

func (r *recordingWriter) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.writes...)
}

func TestSchedulerCoalescesBurstIntoFinalState(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	w := &recordingWriter{}
	s := NewScheduler(20*time.Millisecond, w.write, nil)
	defer s.Stop()

	for i := 0; i < 10; i++ {
		s.Schedule(State{SessionID: "cart_1_abc"})
		s.Schedule(State{SessionID: "cart_final"})
	}
	require.True(t, s.Pending())

	require.Eventually(t, func() bool { return len(w.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "cart_final", w.snapshot()[0].SessionID)
	assert.False(t, s.Pending())

	time.Sleep(40 * time.Millisecond)
	assert.Len(t, w.snapshot(), 1)
}

func TestSchedulerFlushWritesImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	w := &recordingWriter{}
	s := NewScheduler(time.Hour, w.write, nil)
	defer s.Stop()

	require.NoError(t, s.Flush(context.Background()))
	assert.Empty(t, w.snapshot())

	s.Schedule(State{SessionID: "cart_1_abc"})
	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, w.snapshot(), 1)
	assert.False(t, s.Pending())
}

func TestSchedulerReportsTimerErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	w := &recordingWriter{err: errors.New("disk full")}
	errCh := make(chan error, 1)
	s := NewScheduler(5*time.Millisecond, w.write, func(err error) { errCh <- err })
	defer s.Stop()

	s.Schedule(State{SessionID: "cart_1_abc"})
	select {
	case err := <-errCh:
		assert.EqualError(t, err, "disk full")
	case <-time.After(time.Second):
		t.Fatal("expected scheduled write error")
	}
}

func TestSchedulerStopDropsPendingAndFutureWrites(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	w := &recordingWriter{}
	s := NewScheduler(10*time.Millisecond, w.write, nil)

	s.Schedule(State{SessionID: "cart_1_abc"})
	s.Stop()
	s.Schedule(State{SessionID: "cart_2_abc"})
	time.Sleep(30 * time.Millisecond)

	assert.Empty(t, w.snapshot())
	assert.False(t, s.Pending())
	assert.True(t, s.Stopped())

	require.NoError(t, s.Write(context.Background(), State{SessionID: "cart_3_abc"}))
	require.Len(t, w.snapshot(), 1)
	assert.Equal(t, "cart_3_abc", w.snapshot()[0].SessionID)
}
