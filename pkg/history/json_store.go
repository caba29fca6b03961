package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// JSONStore keeps the whole history as one JSON array in a file.
type JSONStore struct {
	path   string
	logger *logrus.Logger

	mu   sync.RWMutex
	list entryList
}

// NewJSONStore creates a store backed by path. Call Load before use.
func NewJSONStore(path string, logger *logrus.Logger) *JSONStore {
	return &JSONStore{path: path, logger: logger}
}

// Load reads the file. A missing or malformed file yields an empty history.
func (s *JSONStore) Load(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.list.entries = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read history file: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("History file is malformed; starting with empty history")
		s.list.entries = nil
		return nil
	}

	s.list.entries = entries
	s.logger.WithFields(logrus.Fields{
		"path":    s.path,
		"entries": len(entries),
	}).Debug("Loaded history")
	return nil
}

// Save writes the history through a temp file and rename.
func (s *JSONStore) Save(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.write()
}

func (s *JSONStore) write() error {
	entries := s.list.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

func (s *JSONStore) List(context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.list(), nil
}

func (s *JSONStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.get(id)
}

// Append adds the entry and persists. Nothing changes if the write fails.
func (s *JSONStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.list.entries
	s.list.prepend(entry)
	if err := s.write(); err != nil {
		s.list.entries = prev
		return err
	}
	return nil
}

func (s *JSONStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.list.remove(id)
	if err != nil {
		return err
	}
	if err := s.write(); err != nil {
		s.list.entries = prev
		return err
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }
