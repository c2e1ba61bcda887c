package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a payload stays valid when no TTL is configured
	DefaultTTL = 5 * time.Minute
)

var (
	// ErrInvalidTTL indicates a non-positive TTL was configured
	ErrInvalidTTL = errors.New("cache ttl must be positive")
)

// Outcome describes how a Fetch was served.
type Outcome string

const (
	// OutcomeHit means the payload came from a valid cache entry.
	OutcomeHit Outcome = "HIT"

	// OutcomeMiss means this caller ran the producer.
	OutcomeMiss Outcome = "MISS"

	// OutcomeShared means this caller waited on another caller's producer.
	OutcomeShared Outcome = "SHARED"
)

// Producer computes the payload for a missing key. Returning an error
// leaves the store untouched.
type Producer func(ctx context.Context) (json.RawMessage, error)

// Store is an in-memory TTL cache with single-flight loading.
//
// The mutex guards the backend only. Producers run outside of it, so a slow
// upstream for one key never blocks readers or loaders of other keys.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithMaxEntries bounds the store to n entries, evicting the oldest
// insertion first. n <= 0 keeps the store unbounded.
func WithMaxEntries(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			return nil
		}
		backend, err := newBoundedBackend(n)
		if err != nil {
			return fmt.Errorf("create bounded backend: %w", err)
		}
		s.backend = backend
		return nil
	}
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		s.now = now
		return nil
	}
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// NewStore creates a store whose entries are valid for ttl.
// Without WithMaxEntries the store is unbounded and relies on expiry alone.
func NewStore(ttl time.Duration, opts ...Option) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w (got %s)", ErrInvalidTTL, ttl)
	}

	s := &Store{
		backend: newMapBackend(),
		ttl:     ttl,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TTL returns the configured entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the entry for key. An expired entry is dropped and reported
// as a miss.
func (s *Store) Get(key CacheKey) (Entry, bool) {
	entry, ok := s.lookup(key.String())
	if !ok {
		CacheMisses.Inc()
		return Entry{}, false
	}
	CacheHits.Inc()
	return entry, true
}

// Put stores payload under key, replacing any existing entry.
func (s *Store) Put(key CacheKey, payload json.RawMessage) {
	s.put(key.String(), payload)
}

// Delete removes the entry for key.
func (s *Store) Delete(key CacheKey) {
	s.mu.Lock()
	s.backend.Delete(key.String())
	CacheEntries.Set(float64(s.backend.Len()))
	s.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until
// they are read or purged.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Len()
}

// Fetch returns the cached payload for key or loads it with produce.
//
// Concurrent misses on the same key run produce once; every waiter gets its
// payload or its error. Errors are not cached. produce receives a context
// that is not cancelled when ctx is, so a caller that goes away does not
// abort work other callers are waiting for; the caller itself returns
// ctx.Err() right away.
func (s *Store) Fetch(ctx context.Context, key CacheKey, produce Producer) (json.RawMessage, Outcome, error) {
	k := key.String()

	if entry, ok := s.Get(key); ok {
		s.logger.Debug().
			Str("key", k).
			Dur("ttl_left", entry.TTL(s.now(), s.ttl)).
			Msg("Cache hit")
		return entry.Payload, OutcomeHit, nil
	}

	type flight struct {
		payload json.RawMessage
		cached  bool
	}

	flightCtx := context.WithoutCancel(ctx)
	owner := false

	ch := s.group.DoChan(k, func() (interface{}, error) {
		owner = true

		// A flight that finished between our lookup and DoChan already stored it.
		if entry, ok := s.lookup(k); ok {
			return flight{payload: entry.Payload, cached: true}, nil
		}

		payload, err := produce(flightCtx)
		if err != nil {
			return nil, err
		}

		s.put(k, payload)
		return flight{payload: payload}, nil
	})

	select {
	case res := <-ch:
		outcome := OutcomeShared
		if owner {
			outcome = OutcomeMiss
		} else {
			CacheSharedFetches.Inc()
		}

		if res.Err != nil {
			return nil, outcome, res.Err
		}

		f := res.Val.(flight)
		if f.cached {
			outcome = OutcomeHit
		}

		s.logger.Debug().
			Str("key", k).
			Str("outcome", string(outcome)).
			Msg("Cache fetch complete")

		return f.payload, outcome, nil

	case <-ctx.Done():
		s.logger.Debug().
			Str("key", k).
			Msg("Caller left before fetch completed")
		return nil, OutcomeMiss, ctx.Err()
	}
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (s *Store) PurgeExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, k := range s.backend.Keys() {
		entry, ok := s.backend.Get(k)
		if ok && entry.IsExpired(now, s.ttl) {
			s.backend.Delete(k)
			removed++
		}
	}

	if removed > 0 {
		CacheExpirations.Add(float64(removed))
		CacheEntries.Set(float64(s.backend.Len()))
	}

	return removed
}

// lookup returns a valid entry without touching hit/miss metrics.
func (s *Store) lookup(k string) (Entry, bool) {
	s.mu.RLock()
	entry, ok := s.backend.Get(k)
	s.mu.RUnlock()

	if !ok {
		return Entry{}, false
	}

	now := s.now()
	if !entry.IsExpired(now, s.ttl) {
		return entry, true
	}

	s.mu.Lock()
	// Only drop it if nobody replaced it in the meantime.
	if current, ok := s.backend.Get(k); ok && current.IsExpired(now, s.ttl) {
		s.backend.Delete(k)
		CacheExpirations.Inc()
		CacheEntries.Set(float64(s.backend.Len()))
	}
	s.mu.Unlock()

	s.logger.Debug().Str("key", k).Msg("Dropped expired cache entry")
	return Entry{}, false
}

func (s *Store) put(k string, payload json.RawMessage) {
	entry := Entry{
		Payload:  payload,
		StoredAt: s.now(),
	}

	s.mu.Lock()
	evicted := s.backend.Set(k, entry)
	size := s.backend.Len()
	s.mu.Unlock()

	if evicted {
		CacheEvictions.Inc()
	}
	CacheEntries.Set(float64(size))
	CacheSize.Add(float64(len(payload)))

	s.logger.Debug().
		Str("key", k).
		Dur("ttl", s.ttl).
		Int("bytes", len(payload)).
		Msg("Cached payload")
}
