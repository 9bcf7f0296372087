// Package memory is an in-process domain.Store used for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/store"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("memory store closed")

// Store keeps documents in a map and notifies watchers synchronously after each write.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]json.RawMessage
	failures map[string]error
	readFail map[string]error
	closed   bool
	hub      *store.Hub
}

// New returns an empty Store.
func New() *Store {
	s := &Store{
		docs:     make(map[string]json.RawMessage),
		failures: make(map[string]error),
		readFail: make(map[string]error),
	}
	s.hub = store.NewHub(s.Get)
	return s
}

// Fail makes every write at or below path return err. A nil err clears it.
func (s *Store) Fail(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setFailure(s.failures, path, err)
}

// FailReads makes every read at or below path return err. A nil err clears it.
func (s *Store) FailReads(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setFailure(s.readFail, path, err)
}

func setFailure(m map[string]error, path string, err error) {
	if err == nil {
		delete(m, path)
		return
	}
	m[path] = err
}

// PutRaw stores raw bytes at path without validation, then notifies watchers.
func (s *Store) PutRaw(path string, raw json.RawMessage) {
	s.mu.Lock()
	s.docs[path] = raw
	s.mu.Unlock()
	s.hub.Notify(context.Background(), path)
}

func failure(m map[string]error, path string) error {
	for p, err := range m {
		if store.Within(path, p) {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.Snapshot{}, ErrClosed
	}
	if err := failure(s.readFail, path); err != nil {
		return domain.Snapshot{}, err
	}
	docs := make([]store.Doc, 0, len(s.docs))
	for p, v := range s.docs {
		if store.Within(p, path) {
			docs = append(docs, store.Doc{Path: p, Value: v})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return store.Build(path, docs), nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	if value == nil {
		return s.Remove(ctx, path)
	}
	raw, err := store.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.writable(path); err != nil {
		s.mu.Unlock()
		return err
	}
	s.removeLocked(path)
	for _, a := range store.Ancestors(path) {
		delete(s.docs, a)
	}
	s.docs[path] = raw
	s.mu.Unlock()

	s.hub.Notify(ctx, path)
	return nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	if err := s.writable(path); err != nil {
		s.mu.Unlock()
		return err
	}
	s.removeLocked(path)
	s.mu.Unlock()

	s.hub.Notify(ctx, path)
	return nil
}

func (s *Store) writable(path string) error {
	if s.closed {
		return ErrClosed
	}
	return failure(s.failures, path)
}

func (s *Store) removeLocked(path string) {
	for p := range s.docs {
		if store.Within(p, path) {
			delete(s.docs, p)
		}
	}
}

func (s *Store) Watch(path string, q domain.Query, onChange func(domain.Snapshot), onCancel func(error)) (domain.Subscription, error) {
	return s.hub.Watch(context.Background(), path, q, onChange, onCancel)
}

// Watchers returns the number of active watches.
func (s *Store) Watchers() int {
	return s.hub.Len()
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.CancelAll(nil)
	return nil
}
