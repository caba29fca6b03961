package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"speechcoach/pkg/analysis"
	"speechcoach/pkg/errors"

	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	date            TEXT NOT NULL,
	duration        INTEGER NOT NULL,
	location        TEXT NOT NULL,
	transcript      TEXT NOT NULL,
	score           REAL NOT NULL,
	feedback        TEXT NOT NULL,
	word_count      INTEGER NOT NULL,
	sentence_count  INTEGER NOT NULL,
	avg_words       REAL NOT NULL
)`

const selectEntries = `
	SELECT id, date, duration, location, transcript, score, feedback, word_count, sentence_count, avg_words
	FROM entries`

// SQLiteStore keeps history in a SQLite database. Every write is committed
// immediately, so Save is a no-op.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
}

// OpenSQLiteStore opens (creating if needed) the database at path. A file
// that is not a readable database is moved aside and replaced by an empty one.
func OpenSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := openSQLite(path)
	if err != nil && isCorrupt(err) {
		moved, mvErr := quarantine(path)
		if mvErr != nil {
			return nil, fmt.Errorf("move unreadable database aside: %w", mvErr)
		}
		logger.WithError(err).WithFields(logrus.Fields{
			"path":     path,
			"moved_to": moved,
		}).Warn("History database is unreadable; starting with empty history")
		db, err = openSQLite(path)
	}
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func isCorrupt(err error) bool {
	var serr *sqlite.Error
	if !stderrors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return true
	}
	return false
}

// quarantine renames path and its WAL companions to <path>.corrupt-<timestamp>.
func quarantine(path string) (string, error) {
	moved := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(path, moved); err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, moved+suffix); err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	return moved, nil
}

// Load creates the schema if it does not exist.
func (s *SQLiteStore) Load(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.logger.WithField("path", s.path).Debug("History database ready")
	return nil
}

func (s *SQLiteStore) Save(context.Context) error { return nil }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntries+` ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.logger.WithError(err).Warn("Skipping unreadable history row")
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntries+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, errors.NewEntryNotFound(id)
	}
	return e, err
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, date, duration, location, transcript, score, feedback, word_count, sentence_count, avg_words)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Date.UTC().Format(time.RFC3339Nano), e.Duration, e.Location, e.Transcript,
		e.Analysis.Score, e.Analysis.Feedback,
		e.Analysis.Metrics.WordCount, e.Analysis.Metrics.SentenceCount, e.Analysis.Metrics.AvgWordsPerSentence)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n == 0 {
		return errors.NewEntryNotFound(id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var date string
	var m analysis.Metrics
	if err := row.Scan(&e.ID, &date, &e.Duration, &e.Location, &e.Transcript,
		&e.Analysis.Score, &e.Analysis.Feedback,
		&m.WordCount, &m.SentenceCount, &m.AvgWordsPerSentence); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return Entry{}, fmt.Errorf("parse entry date %q: %w", date, err)
	}
	e.Date = t
	e.Analysis.Metrics = m
	return e, nil
}
