// Package output renders per-device results as an aligned table or as one JSON
// document.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// OutputMode defines the available output formatting modes
type OutputMode string

const (
	// ShortMode prints a table with the essential columns
	ShortMode OutputMode = "short"

	// LongMode prints a table with every column a device reports
	LongMode OutputMode = "long"

	// JSONMode prints one compact JSON array of nested records
	JSONMode OutputMode = "json"
)

// ModeFor picks the output mode from the global flags. JSON wins over long.
func ModeFor(jsonOutput, long bool) OutputMode {
	switch {
	case jsonOutput:
		return JSONMode
	case long:
		return LongMode
	default:
		return ShortMode
	}
}

// Record is one device's shaped result. Row is used by the table modes, Doc by JSON mode.
type Record struct {
	Row Row
	Doc any
}

// Formatter writes a batch of records as a single document
type Formatter struct {
	mode   OutputMode
	writer io.Writer
}

// NewFormatter creates a new formatter with the specified mode and writer
func NewFormatter(mode OutputMode, writer io.Writer) *Formatter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Formatter{mode: mode, writer: writer}
}

// Mode returns the formatter's output mode
func (f *Formatter) Mode() OutputMode {
	return f.mode
}

// Render writes all records at once, followed by a newline
func (f *Formatter) Render(records []Record) error {
	var doc string
	switch f.mode {
	case JSONMode:
		docs := make([]any, 0, len(records))
		for _, r := range records {
			docs = append(docs, r.Doc)
		}
		encoded, err := json.Marshal(docs)
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		doc = string(encoded)
	case ShortMode, LongMode:
		rows := make([]Row, 0, len(records))
		for _, r := range records {
			rows = append(rows, r.Row)
		}
		doc = RenderTable(rows)
	default:
		return fmt.Errorf("unknown output mode: %s", f.mode)
	}

	if _, err := io.WriteString(f.writer, doc+"\n"); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// Render is shorthand for NewFormatter(mode, w).Render(records)
func Render(w io.Writer, records []Record, mode OutputMode) error {
	return NewFormatter(mode, w).Render(records)
}
