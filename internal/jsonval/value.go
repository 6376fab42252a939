// Package jsonval models untyped JSON as a tagged union.
//
// Objects keep their members in document order so that searches over
// nested payloads are deterministic. Every accessor is total: asking an
// array for a key, or a string for its elements, yields Undefined or nil
// rather than panicking.
package jsonval

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	Undefined Kind = iota // absent, never produced by parsing
	Null
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "undefined"
	}
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable JSON value. The zero Value is Undefined.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  []Member
}

// Constructors.

func NullValue() Value { return Value{kind: Null} }
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }
func NumberValue(n float64) Value { return Value{kind: Number, num: n} }
func StringValue(s string) Value { return Value{kind: String, str: s} }

func ArrayValue(elems ...Value) Value {
	return Value{kind: Array, arr: append([]Value(nil), elems...)}
}

func ObjectValue(members ...Member) Value {
	return Value{kind: Object, obj: append([]Member(nil), members...)}
}

// M is shorthand for building a Member.
func M(key string, v Value) Member { return Member{Key: key, Value: v} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) Exists() bool { return v.kind != Undefined }
func (v Value) IsObject() bool { return v.kind == Object }
func (v Value) IsArray() bool { return v.kind == Array }
func (v Value) IsString() bool { return v.kind == String }

// Get returns the member named key, or Undefined. When an object repeats a
// key the last occurrence wins, matching JSON.parse.
func (v Value) Get(key string) Value {
	if v.kind != Object {
		return Value{}
	}
	for i := len(v.obj) - 1; i >= 0; i-- {
		if v.obj[i].Key == key {
			return v.obj[i].Value
		}
	}
	return Value{}
}

// Has reports whether the object has a member named key.
func (v Value) Has(key string) bool {
	return v.Get(key).Exists()
}

// Path walks nested objects, one key per element.
func (v Value) Path(keys ...string) Value {
	cur := v
	for _, k := range keys {
		cur = cur.Get(k)
		if !cur.Exists() {
			return cur
		}
	}
	return cur
}

// Members returns the object's members in document order.
func (v Value) Members() []Member {
	if v.kind != Object {
		return nil
	}
	return v.obj
}

// Elements returns the array's elements.
func (v Value) Elements() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Str returns the string payload when v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.str, true
}

// BoolVal returns the bool payload when v is a bool.
func (v Value) BoolVal() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// Num returns the number payload when v is a number.
func (v Value) Num() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	return v.num, true
}

// Truthy follows JavaScript truthiness.
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.num != 0 && !math.IsNaN(v.num)
	case String:
		return v.str != ""
	case Array, Object:
		return true
	default:
		return false
	}
}

// Text renders a truthy scalar the way String() does in JavaScript. It
// reports false for falsy values and for arrays and objects, which never
// make a meaningful identifier.
func (v Value) Text() (string, bool) {
	if !v.Truthy() {
		return "", false
	}
	switch v.kind {
	case String:
		return v.str, true
	case Number:
		return formatNumber(v.num), true
	case Bool:
		return "true", true
	}
	return "", false
}

// String renders v for display. Containers render as compact JSON.
func (v Value) String() string {
	switch v.kind {
	case Undefined:
		return ""
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(v.b)
	case Number:
		return formatNumber(v.num)
	case String:
		return v.str
	}
	return v.Compact()
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	abs := math.Abs(n)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	s := strconv.FormatFloat(n, 'e', -1, 64)
	// Go writes 1e-07, JavaScript writes 1e-7.
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		mant, exp := s[:i], s[i+1:]
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		s = mant + "e" + sign + digits
	}
	return s
}
