package persistence

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a scheduled save is written.
const DefaultDebounce = time.Second

// Scheduler coalesces bursts of saves into one trailing write. It holds at
// most one pending state; scheduling again replaces it and restarts the timer.
type Scheduler struct {
	delay   time.Duration
	write   func(context.Context, State) error
	onError func(error)

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	state   State
	stopped bool

	// writeMu orders writes so a later state is never overwritten by an earlier one.
	writeMu sync.Mutex
}

func NewScheduler(delay time.Duration, write func(context.Context, State) error, onError func(error)) *Scheduler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Scheduler{delay: delay, write: write, onError: onError}
}

// Schedule records state as the next write and (re)arms the timer. It
// reports false once the scheduler is stopped.
func (s *Scheduler) Schedule(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.state = state
	s.pending = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.fire)
		return true
	}
	s.timer.Reset(s.delay)
	return true
}

func (s *Scheduler) fire() {
	if err := s.Flush(context.Background()); err != nil {
		s.onError(err)
	}
}

// Flush writes the pending state now. It is a no-op when nothing is pending.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return nil
	}
	state := s.state
	s.dropLocked()
	s.mu.Unlock()

	return s.write(ctx, state)
}

// Write replaces any pending state with state and writes it now, in order
// with timer-driven writes. It works on a stopped scheduler.
func (s *Scheduler) Write(ctx context.Context, state State) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.dropLocked()
	s.mu.Unlock()

	return s.write(ctx, state)
}

func (s *Scheduler) dropLocked() {
	s.pending = false
	s.state = State{}
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Pending reports whether a write is waiting on the timer.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Cancel drops the pending write without stopping the scheduler. It waits
// for a write already in flight.
func (s *Scheduler) Cancel() {
	_ = s.CancelThen(nil)
}

// CancelThen drops the pending write and runs fn before any later write can
// start. A write in flight finishes first, so fn sees its result.
func (s *Scheduler) CancelThen(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.dropLocked()
	s.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn()
}

// Stop cancels any pending write and rejects future schedules.
func (s *Scheduler) Stop() {
	s.Cancel()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Stopped reports whether Stop has run.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
