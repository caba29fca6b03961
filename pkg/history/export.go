package history

import (
	"encoding/json"
	"fmt"
	"io"

	"speechcoach/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Exporter writes entries in a particular format
type Exporter interface {
	Export(entries []Entry, w io.Writer) error
	// Extension returns the file extension for this format
	Extension() string
}

// JSONExporter exports entries as an indented JSON array
type JSONExporter struct{}

func (e *JSONExporter) Export(entries []Entry, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func (e *JSONExporter) Extension() string {
	return "json"
}

// YAMLExporter exports entries as a YAML sequence
type YAMLExporter struct{}

func (e *YAMLExporter) Export(entries []Entry, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(entries)
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}

// NewExporter returns the exporter for format ("json" or "yaml")
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	default:
		return nil, errors.NewInvalidInput(fmt.Sprintf("unsupported export format: %s", format))
	}
}
