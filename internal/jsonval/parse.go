package jsonval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ErrInvalid is wrapped by every Parse failure.
var ErrInvalid = errors.New("invalid JSON")

// Parse decodes exactly one JSON value from text. Leading and trailing
// whitespace is allowed; anything else after the value is an error.
func Parse(text string) (Value, error) {
	if !gjson.Valid(text) {
		return Value{}, fmt.Errorf("%w: %s", ErrInvalid, reason(text))
	}
	return fromResult(gjson.Parse(text)), nil
}

// Valid reports whether text holds exactly one JSON value.
func Valid(text string) bool {
	return gjson.Valid(text)
}

// ParseObject is Parse restricted to objects.
func ParseObject(text string) (Value, bool) {
	v, err := Parse(text)
	if err != nil || !v.IsObject() {
		return Value{}, false
	}
	return v, true
}

// reason asks the decoder for a human-readable syntax error.
func reason(text string) string {
	if strings.TrimSpace(text) == "" {
		return "unexpected end of JSON input"
	}
	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return strings.TrimPrefix(err.Error(), "json: ")
	}
	return "unexpected token"
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return NullValue()
	case gjson.False:
		return BoolValue(false)
	case gjson.True:
		return BoolValue(true)
	case gjson.Number:
		return NumberValue(r.Num)
	case gjson.String:
		return StringValue(r.Str)
	}

	if r.IsArray() {
		elems := make([]Value, 0)
		r.ForEach(func(_, value gjson.Result) bool {
			elems = append(elems, fromResult(value))
			return true
		})
		return Value{kind: Array, arr: elems}
	}
	if r.IsObject() {
		members := make([]Member, 0)
		r.ForEach(func(key, value gjson.Result) bool {
			members = append(members, Member{Key: key.Str, Value: fromResult(value)})
			return true
		})
		return Value{kind: Object, obj: members}
	}
	return Value{}
}
