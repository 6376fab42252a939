package jsonval

import (
	"math"
	"strings"

	"github.com/goccy/go-json"
)

// Compact renders v as single-line JSON, members in document order.
// Undefined renders as the empty string.
func (v Value) Compact() string {
	if !v.Exists() {
		return ""
	}
	return string(v.appendTo(nil, "", 0))
}

// Indent renders v as JSON indented by two spaces per level, the layout
// JSON.stringify(v, null, 2) produces.
func (v Value) Indent() string {
	if !v.Exists() {
		return ""
	}
	return string(v.appendTo(nil, "  ", 0))
}

// Pretty re-serializes raw with two-space indentation when it is JSON.
func Pretty(raw string) (string, bool) {
	v, err := Parse(raw)
	if err != nil {
		return "", false
	}
	return v.Indent(), true
}

// MarshalJSON implements json.Marshaler. Undefined marshals as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Exists() {
		return []byte("null"), nil
	}
	return v.appendTo(nil, "", 0), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving member order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) appendTo(dst []byte, indent string, depth int) []byte {
	switch v.kind {
	case Null, Undefined:
		return append(dst, "null"...)
	case Bool:
		if v.b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case Number:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return append(dst, "null"...)
		}
		return append(dst, formatNumber(v.num)...)
	case String:
		return appendString(dst, v.str)
	case Array:
		if len(v.arr) == 0 {
			return append(dst, "[]"...)
		}
		dst = append(dst, '[')
		for i, e := range v.arr {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = newline(dst, indent, depth+1)
			dst = e.appendTo(dst, indent, depth+1)
		}
		dst = newline(dst, indent, depth)
		return append(dst, ']')
	case Object:
		if len(v.obj) == 0 {
			return append(dst, "{}"...)
		}
		dst = append(dst, '{')
		for i, m := range v.obj {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = newline(dst, indent, depth+1)
			dst = appendString(dst, m.Key)
			dst = append(dst, ':')
			if indent != "" {
				dst = append(dst, ' ')
			}
			dst = m.Value.appendTo(dst, indent, depth+1)
		}
		dst = newline(dst, indent, depth)
		return append(dst, '}')
	}
	return dst
}

func newline(dst []byte, indent string, depth int) []byte {
	if indent == "" {
		return dst
	}
	dst = append(dst, '\n')
	return append(dst, strings.Repeat(indent, depth)...)
}

func appendString(dst []byte, s string) []byte {
	b, err := json.MarshalWithOption(s, json.DisableHTMLEscape())
	if err != nil {
		return append(dst, `""`...)
	}
	return append(dst, b...)
}
