// Package dedup keeps the durable record of tokens that already triggered an
// alert so the same opportunity is surfaced once per store lifetime.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"perp-basis-alerts/internal/engine"
)

// Record marks a token as already alerted.
type Record struct {
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// Backend persists the full record set with whole-overwrite semantics.
// Load on a store that was never written returns no records and no error.
type Backend interface {
	Name() string
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// StoreError reports unreadable or unwritable dedup state. It is never fatal.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("dedup store %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Options tune a Store.
type Options struct {
	// Persist gates Save. When false every mutation stays in memory.
	Persist bool
	// Now stamps new records; defaults to time.Now.
	Now func() time.Time
}

// Store is the in-memory token -> Record mapping backed by a Backend.
type Store struct {
	backend Backend
	persist bool
	now     func() time.Time

	mu      sync.RWMutex
	order   []string
	records map[string]Record
}

// Open loads persisted state. A load failure still yields a usable, empty
// store together with a *StoreError for the caller to log.
func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	s := &Store{
		backend: backend,
		persist: opts.Persist,
		now:     opts.Now,
		records: make(map[string]Record),
	}
	if s.now == nil {
		s.now = time.Now
	}

	records, err := backend.Load(ctx)
	if err != nil {
		return s, &StoreError{Backend: backend.Name(), Op: "load", Err: err}
	}
	for _, rec := range records {
		s.put(rec)
	}
	return s, nil
}

func (s *Store) put(rec Record) {
	rec.Token = strings.ToUpper(strings.TrimSpace(rec.Token))
	if rec.Token == "" {
		return
	}
	if _, exists := s.records[rec.Token]; !exists {
		s.order = append(s.order, rec.Token)
	}
	s.records[rec.Token] = rec
}

// Persistent reports whether Save writes through to the backend.
func (s *Store) Persistent() bool { return s.persist }

// Has reports whether token was already alerted.
func (s *Store) Has(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[strings.ToUpper(token)]
	return ok
}

// Len returns the number of known tokens.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of the mapping in insertion order.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, token := range s.order {
		out = append(out, s.records[token])
	}
	return out
}

// FilterNew records every alert whose token is unknown and returns exactly
// the records it created, in input order. Several alerts for one token in the
// same call yield a single record carrying the first alert's message.
func (s *Store) FilterNew(alerts []engine.Alert) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]Record, 0)
	for _, alert := range alerts {
		token := strings.ToUpper(strings.TrimSpace(alert.Token))
		if token == "" {
			continue
		}
		if _, seen := s.records[token]; seen {
			continue
		}
		rec := Record{Token: token, Timestamp: s.now().Unix(), Message: alert.Message}
		s.put(rec)
		fresh = append(fresh, rec)
	}
	return fresh
}

// Save writes the full mapping when persistence is enabled and is a no-op
// otherwise. A failed write leaves the in-memory mapping intact.
func (s *Store) Save(ctx context.Context) error {
	if !s.persist {
		return nil
	}
	if err := s.backend.Save(ctx, s.Records()); err != nil {
		return &StoreError{Backend: s.backend.Name(), Op: "save", Err: err}
	}
	return nil
}

// Clear forgets every record and writes the empty set through to the backend
// regardless of Persist. It is an explicit operator action.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.order = nil
	s.records = make(map[string]Record)
	s.mu.Unlock()

	if err := s.backend.Save(ctx, nil); err != nil {
		return &StoreError{Backend: s.backend.Name(), Op: "clear", Err: err}
	}
	return nil
}

// Memory is a Backend that keeps records for the lifetime of the value only.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Load(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...), nil
}

func (m *Memory) Save(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]Record(nil), records...)
	return nil
}

var _ Backend = (*Memory)(nil)
