// Package history persists analyzed recordings.
package history

import (
	"fmt"
	"time"

	"speechcoach/pkg/analysis"

	"github.com/google/uuid"
)

// Entry is one analyzed recording. Entries are immutable once created.
type Entry struct {
	ID         string          `json:"id" yaml:"id"`
	Date       time.Time       `json:"date" yaml:"date"`
	Duration   int             `json:"duration" yaml:"duration"`
	Location   string          `json:"location" yaml:"location"`
	Transcript string          `json:"transcript" yaml:"transcript"`
	Analysis   analysis.Result `json:"analysis" yaml:"analysis"`
}

// NewEntry creates an entry with a fresh time-ordered id and the current UTC time.
func NewEntry(location string, durationSeconds int, transcript string, result analysis.Result) (Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("generate entry id: %w", err)
	}
	return Entry{
		ID:         id.String(),
		Date:       time.Now().UTC(),
		Duration:   durationSeconds,
		Location:   location,
		Transcript: transcript,
		Analysis:   result,
	}, nil
}
