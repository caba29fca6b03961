package history

import (
	"context"
	"fmt"

	"speechcoach/pkg/config"
	"speechcoach/pkg/errors"

	"github.com/sirupsen/logrus"
)

// Store persists history entries.
type Store interface {
	// Load reads persisted entries. Malformed data loads as empty.
	Load(ctx context.Context) error
	// Save flushes entries to durable storage.
	Save(ctx context.Context) error
	// List returns entries most-recent-first.
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Append(ctx context.Context, entry Entry) error
	// Remove deletes exactly the entry with id, keeping the others in order.
	Remove(ctx context.Context, id string) error
	Close() error
}

// Open builds and loads the store selected by cfg.
func Open(ctx context.Context, cfg *config.HistoryConfig, logger *logrus.Logger) (Store, error) {
	var store Store
	switch cfg.Backend {
	case "json", "":
		store = NewJSONStore(cfg.Path, logger)
	case "sqlite":
		s, err := OpenSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		store = s
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, errors.NewInvalidInput(fmt.Sprintf("unknown history backend: %s", cfg.Backend))
	}

	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
