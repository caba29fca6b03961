package history

import (
	"context"
	"sync"

	"speechcoach/pkg/errors"
)

// entryList keeps entries most-recent-first. Callers hold the lock.
type entryList struct {
	entries []Entry
}

func (l *entryList) list() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *entryList) get(id string) (Entry, error) {
	for _, e := range l.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, errors.NewEntryNotFound(id)
}

func (l *entryList) prepend(entry Entry) {
	l.entries = append([]Entry{entry}, l.entries...)
}

// remove returns the previous slice so a failed save can be rolled back.
func (l *entryList) remove(id string) ([]Entry, error) {
	prev := l.entries
	kept := make([]Entry, 0, len(prev))
	found := false
	for _, e := range prev {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return nil, errors.NewEntryNotFound(id)
	}
	l.entries = kept
	return prev, nil
}

// MemoryStore keeps entries in process memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	list entryList
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) error { return nil }
func (s *MemoryStore) Save(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) List(context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.list(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.get(id)
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list.prepend(entry)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.list.remove(id)
	return err
}
