// Package parser turns uploaded log documents into RawLogEntry records.
//
// A document is either one JSON value (an object or an array of objects)
// or newline-delimited JSON where each entry may be pretty-printed over
// several lines.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atikulmunna/flowscope/internal/jsonval"
	"github.com/atikulmunna/flowscope/internal/model"
)

//nolint:stylecheck // capitalised: returned verbatim to API clients
var (
	// ErrEmpty is returned for blank input.
	ErrEmpty = errors.New("File is empty")
	// ErrNoEntries is returned when nothing in the document could be used.
	ErrNoEntries = errors.New("Failed to parse any JSON entries")
)

// PartialError reports lines that failed while others succeeded. It is
// returned together with the recovered entries.
type PartialError struct {
	Count  int      // entries recovered
	Errors []string // one note per failed line, in document order
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("Parsed %d entries with %d error(s). First error: %s", e.Count, len(e.Errors), e.Errors[0])
}

// ParseDocument splits text into entries. It never panics. On total
// failure it returns ErrEmpty or ErrNoEntries; on partial failure it
// returns the good entries and a *PartialError.
func ParseDocument(text string) ([]model.RawLogEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}

	if v, err := jsonval.Parse(text); err == nil {
		switch v.Kind() {
		case jsonval.Object:
			return []model.RawLogEntry{toEntry(v)}, nil
		case jsonval.Array:
			return finish(spread(v, "Array"))
		}
	}

	return finish(ParseLines(text))
}

// ParseLines runs the NDJSON scanner over every line of text.
func ParseLines(text string) ([]model.RawLogEntry, []string) {
	var (
		entries []model.RawLogEntry
		notes   []string
		sc      = NewScanner()
	)
	for i, line := range strings.Split(text, "\n") {
		got, errs := sc.Feed(i+1, strings.TrimSuffix(line, "\r"))
		entries = append(entries, got...)
		notes = append(notes, errs...)
	}
	got, errs := sc.Flush()
	return append(entries, got...), append(notes, errs...)
}

func finish(entries []model.RawLogEntry, notes []string) ([]model.RawLogEntry, error) {
	switch {
	case len(entries) == 0:
		return nil, ErrNoEntries
	case len(notes) > 0:
		return entries, &PartialError{Count: len(entries), Errors: notes}
	}
	return entries, nil
}
