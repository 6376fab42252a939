package parser

import (
	"fmt"
	"strings"

	"github.com/atikulmunna/flowscope/internal/jsonval"
	"github.com/atikulmunna/flowscope/internal/model"
)

// Scanner splits newline-delimited JSON into entries. Entries may span
// several lines (pretty-printed objects); a value ends on the line where
// brace and bracket depth return to zero. Only { } [ ] and " are
// significant, and none of them count inside a string literal.
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	buf        strings.Builder
	braces     int
	brackets   int
	inString   bool
	escapeNext bool
}

// NewScanner returns an empty Scanner.
func NewScanner() *Scanner { return &Scanner{} }

// Pending reports whether a partial value is buffered.
func (s *Scanner) Pending() bool {
	return strings.TrimSpace(s.buf.String()) != ""
}

// Feed consumes one line (without its trailing newline). lineNo is only
// used in error messages. It returns the entries completed by this line and
// any notes about values that could not be used.
func (s *Scanner) Feed(lineNo int, line string) ([]model.RawLogEntry, []string) {
	if strings.TrimSpace(line) == "" && !s.Pending() {
		return nil, nil
	}

	if s.buf.Len() > 0 {
		s.buf.WriteByte('\n')
	}
	s.buf.WriteString(line)
	s.track(line)

	if s.braces < 0 || s.brackets < 0 {
		s.reset()
		return nil, []string{fmt.Sprintf("Line %d: unbalanced closing bracket", lineNo)}
	}
	if s.braces != 0 || s.brackets != 0 || !s.Pending() {
		return nil, nil
	}

	text := s.buf.String()
	s.reset()
	return decode(text, fmt.Sprintf("Line %d", lineNo))
}

// Flush parses whatever is buffered if it is balanced, and resets. An
// unterminated value is reported rather than dropped silently.
func (s *Scanner) Flush() ([]model.RawLogEntry, []string) {
	defer s.reset()
	if !s.Pending() {
		return nil, nil
	}
	if s.braces != 0 || s.brackets != 0 {
		return nil, []string{"Final entry: unterminated JSON value"}
	}
	entries, notes := decode(s.buf.String(), "Final entry")
	if len(notes) > 0 && len(entries) == 0 {
		return nil, []string{"Final entry: Parse error"}
	}
	return entries, notes
}

func (s *Scanner) track(line string) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if s.escapeNext {
			s.escapeNext = false
			continue
		}
		if c == '\\' {
			s.escapeNext = true
			continue
		}
		if c == '"' {
			s.inString = !s.inString
			continue
		}
		if s.inString {
			continue
		}
		switch c {
		case '{':
			s.braces++
		case '}':
			s.braces--
		case '[':
			s.brackets++
		case ']':
			s.brackets--
		}
	}
}

func (s *Scanner) reset() {
	s.buf.Reset()
	s.braces, s.brackets = 0, 0
	s.inString, s.escapeNext = false, false
}

// decode parses one buffered value and spreads it into entries.
func decode(text, label string) ([]model.RawLogEntry, []string) {
	v, err := jsonval.Parse(strings.TrimSpace(text))
	if err != nil {
		return nil, []string{fmt.Sprintf("%s: %s", label, strings.TrimPrefix(err.Error(), jsonval.ErrInvalid.Error()+": "))}
	}
	switch v.Kind() {
	case jsonval.Object:
		return []model.RawLogEntry{toEntry(v)}, nil
	case jsonval.Array:
		return spread(v, label)
	default:
		return nil, []string{label + ": Invalid JSON format"}
	}
}

// spread turns an array into one entry per object element.
func spread(arr jsonval.Value, label string) ([]model.RawLogEntry, []string) {
	var (
		entries []model.RawLogEntry
		notes   []string
	)
	for i, elem := range arr.Elements() {
		if !elem.IsObject() {
			notes = append(notes, fmt.Sprintf("%s: element %d is %s, not an object", label, i, elem.Kind()))
			continue
		}
		entries = append(entries, toEntry(elem))
	}
	return entries, notes
}

// toEntry maps a decoded object onto a RawLogEntry. Splunk exports wrap the
// log in "result"; plain JSON logs are used as the result directly.
func toEntry(obj jsonval.Value) model.RawLogEntry {
	preview, _ := obj.Get("preview").BoolVal()
	result := obj.Get("result")
	switch {
	case result.IsObject():
	case result.Exists():
		result = jsonval.ObjectValue()
	default:
		result = obj
	}
	return model.RawLogEntry{Preview: preview, Result: result}
}
