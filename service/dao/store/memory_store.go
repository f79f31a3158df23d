package store

import (
	"context"
	"sync"

	"github.com/viant/revflow/service/dao"
)

// MemoryStore is a generic in-memory record map. Records go in and come out
// through copyFn so that callers never share state with the store.
//
// Concrete DAOs embed the store and add their own Save semantics on top of
// Put.
type MemoryStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	copyFn      func(*T) *T
	matchFn     func(*T, []*dao.Parameter) bool
}

// Option customises a MemoryStore.
type Option[K comparable, T any] func(s *MemoryStore[K, T])

// WithCopy sets the function used to copy records on the way in and out.
func WithCopy[K comparable, T any](fn func(*T) *T) Option[K, T] {
	return func(s *MemoryStore[K, T]) { s.copyFn = fn }
}

// WithMatcher sets the List filter.
func WithMatcher[K comparable, T any](fn func(*T, []*dao.Parameter) bool) Option[K, T] {
	return func(s *MemoryStore[K, T]) { s.matchFn = fn }
}

// NewMemoryStore creates a new MemoryStore.
// keySelector extracts the entity key (usually the ID field) from a value.
func NewMemoryStore[K comparable, T any](keySelector func(*T) K, opts ...Option[K, T]) *MemoryStore[K, T] {
	ret := &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
		copyFn:      func(v *T) *T { return v },
		matchFn:     func(*T, []*dao.Parameter) bool { return true },
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Put stores v after guard accepts the current record (nil when absent).
// guard may mutate v, for example to advance a version.
func (s *MemoryStore[K, T]) Put(_ context.Context, v *T, guard func(current *T, exists bool) error) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[key]
	if guard != nil {
		if err := guard(current, ok); err != nil {
			return err
		}
	}
	s.records[key] = s.copyFn(v)
	return nil
}

// Save stores or overwrites a record.
func (s *MemoryStore[K, T]) Save(ctx context.Context, v *T) error {
	return s.Put(ctx, v, nil)
}

// Load returns a copy of the record or dao.ErrNotFound.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return s.copyFn(v), nil
}

// Delete removes a record.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return dao.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// List returns copies of matching records in no particular order.
func (s *MemoryStore[K, T]) List(_ context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		if s.matchFn(v, parameters) {
			out = append(out, s.copyFn(v))
		}
	}
	return out, nil
}
