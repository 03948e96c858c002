package persistence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// DefaultStorageKey is the base key every cart payload is stored under.
const DefaultStorageKey = "nuxt-cart"

type Options struct {
	StorageKey string
	SessionID  string
	Debounce   time.Duration
	// OnScheduledError receives failures of timer-driven writes.
	OnScheduledError func(error)
	Now              func() time.Time
}

// LoadResult describes what Load found across the backends.
type LoadResult struct {
	State   State
	Backend enums.StorageBackend
	Dropped int
	// Corrupt is set when a backend held a payload that could not be read at all.
	Corrupt bool
}

// Service writes cart state to a primary backend with a fallback and reads
// back whichever copy is newest.
type Service struct {
	primary   Storage
	fallback  Storage
	key       string
	sessionID string
	now       func() time.Time
	logg      *logger.Logger
	scheduler *Scheduler

	mu         sync.RWMutex
	active     enums.StorageBackend
	lastSaveAt time.Time
}

// NewService wires the backends. fallback may be nil.
func NewService(primary, fallback Storage, opts Options, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	key := strings.TrimSpace(opts.StorageKey)
	if key == "" {
		key = DefaultStorageKey
	}
	if sessionID := strings.TrimSpace(opts.SessionID); sessionID != "" {
		key = key + ":" + sessionID
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		primary:   primary,
		fallback:  fallback,
		key:       key,
		sessionID: strings.TrimSpace(opts.SessionID),
		now:       now,
		logg:      logg,
		active:    enums.StorageBackendNone,
	}
	onError := opts.OnScheduledError
	s.scheduler = NewScheduler(opts.Debounce, s.Save, func(err error) {
		s.logg.Warn(s.logg.WithError(s.ctx(context.Background()), err), "cart.persistence.scheduled_save_failed")
		if onError != nil {
			onError(err)
		}
	})
	return s
}

func (s *Service) ctx(ctx context.Context) context.Context {
	return s.logg.WithFields(ctx, map[string]any{"storage_key": s.key})
}

// Key is the fully scoped storage key.
func (s *Service) Key() string {
	return s.key
}

// ActiveBackend reports where the last successful write landed.
func (s *Service) ActiveBackend() enums.StorageBackend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Service) LastSaveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSaveAt
}

// Save writes state to the primary backend, retrying once on the fallback.
func (s *Service) Save(ctx context.Context, state State) error {
	now := s.now()
	data, err := encodePayload(state, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cannot serialize cart")
	}

	primaryErr := s.primary.Set(ctx, s.key, data)
	if primaryErr == nil {
		s.markSaved(enums.StorageBackendPrimary, now)
		return nil
	}
	logCtx := s.logg.WithError(s.ctx(ctx), primaryErr)
	if s.fallback == nil {
		s.markSaved(enums.StorageBackendNone, time.Time{})
		return pkgerrors.Wrap(pkgerrors.CodeStorage, primaryErr, "cart storage unavailable")
	}

	s.logg.Warn(logCtx, "cart.persistence.primary_failed")
	fallbackErr := s.fallback.Set(ctx, s.key, data)
	if fallbackErr == nil {
		s.markSaved(enums.StorageBackendFallback, now)
		return nil
	}
	s.markSaved(enums.StorageBackendNone, time.Time{})
	return pkgerrors.Wrap(pkgerrors.CodeStorage, multierr.Combine(primaryErr, fallbackErr), "cart storage unavailable")
}

func (s *Service) markSaved(backend enums.StorageBackend, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = backend
	if !at.IsZero() {
		s.lastSaveAt = at
	}
}

// ScheduleSave queues state for a debounced write. It reports false after
// Close, when nothing will write the state.
func (s *Service) ScheduleSave(state State) bool {
	return s.scheduler.Schedule(state)
}

// SaveNow writes state immediately in place of any pending scheduled write.
func (s *Service) SaveNow(ctx context.Context, state State) error {
	return s.scheduler.Write(ctx, state)
}


// Flush writes any pending scheduled state immediately.
func (s *Service) Flush(ctx context.Context) error {
	return s.scheduler.Flush(ctx)
}

// SavePending reports whether a debounced write is outstanding.
func (s *Service) SavePending() bool {
	return s.scheduler.Pending()
}

// Load returns the newest readable payload across backends. Unreadable or
// missing payloads yield an empty state; the error is set only when every
// backend failed to answer.
func (s *Service) Load(ctx context.Context) (LoadResult, error) {
	result := LoadResult{Backend: enums.StorageBackendNone}
	var (
		best     *Payload
		readErrs error
		answered int
	)

	for _, candidate := range s.backends() {
		raw, err := candidate.storage.Get(ctx, s.key)
		if errors.Is(err, ErrKeyNotFound) {
			answered++
			continue
		}
		if err != nil {
			readErrs = multierr.Append(readErrs, err)
			s.logg.Warn(s.logg.WithError(s.ctx(ctx), err), "cart.persistence.read_failed")
			continue
		}
		answered++

		payload, dropped, err := decodePayload(raw)
		if err != nil {
			result.Corrupt = true
			s.logg.Warn(s.logg.WithError(s.ctx(ctx), err), "cart.persistence.payload_unreadable")
			continue
		}
		if best == nil || payload.Timestamp.After(best.Timestamp) {
			p := payload
			best = &p
			result.Backend = candidate.backend
			result.Dropped = dropped
		}
	}

	if best != nil {
		result.State = State{Items: best.Items, SessionID: best.SessionID, LastSyncAt: best.LastSyncAt}
	}
	if result.State.Items == nil {
		result.State.Items = []cart.Item{}
	}
	if result.State.SessionID == "" {
		result.State.SessionID = s.sessionID
	}
	if result.State.SessionID == "" {
		result.State.SessionID = cart.NewSessionID(s.now())
	}
	if result.Dropped > 0 {
		s.logg.Warn(s.logg.WithField(s.ctx(ctx), "dropped_items", result.Dropped), "cart.persistence.items_dropped")
	}

	if answered == 0 && readErrs != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeStorage, readErrs, "cart storage unavailable")
	}
	return result, nil
}

// Clear cancels pending writes and removes the payload from every backend.
func (s *Service) Clear(ctx context.Context) error {
	errs := s.scheduler.CancelThen(func() error {
		var errs error
		for _, candidate := range s.backends() {
			errs = multierr.Append(errs, candidate.storage.Remove(ctx, s.key))
		}
		return errs
	})
	s.markSaved(enums.StorageBackendNone, time.Time{})
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, errs, "cart storage unavailable")
	}
	return nil
}

// Recover loads the cart and, when a stored payload was unreadable, wipes
// storage so the next load starts clean.
func (s *Service) Recover(ctx context.Context) (LoadResult, error) {
	result, err := s.Load(ctx)
	if err != nil {
		return result, err
	}
	if !result.Corrupt {
		return result, nil
	}
	s.logg.Warn(s.ctx(ctx), "cart.persistence.recovering_corrupt_payload")
	if clearErr := s.Clear(ctx); clearErr != nil {
		return result, clearErr
	}
	if len(result.State.Items) > 0 {
		if saveErr := s.SaveNow(ctx, result.State); saveErr != nil {
			return result, saveErr
		}
	}
	return result, nil
}

// Close flushes pending writes and stops the scheduler.
func (s *Service) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.scheduler.Stop()
	return err
}

type namedStorage struct {
	storage Storage
	backend enums.StorageBackend
}

func (s *Service) backends() []namedStorage {
	out := []namedStorage{{storage: s.primary, backend: enums.StorageBackendPrimary}}
	if s.fallback != nil {
		out = append(out, namedStorage{storage: s.fallback, backend: enums.StorageBackendFallback})
	}
	return out
}
