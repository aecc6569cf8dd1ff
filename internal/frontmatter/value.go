// Package frontmatter models note frontmatter as an ordered mapping from key to
// a small tagged-union value, and converts it to and from YAML and JSON.
package frontmatter

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a string, number, bool, list of strings or nested Map.
type Value struct {
	kind Kind
	str  string
	num  float64
	flag bool
	list []string
	obj  *Map
}

// String builds a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// List builds a string list value.
func List(items ...string) Value {
	return Value{kind: KindList, list: append([]string(nil), items...)}
}

// Object builds a nested mapping value.
func Object(m Map) Value {
	clone := m.Clone()
	return Value{kind: KindObject, obj: &clone}
}

// FromAny converts loosely typed input (JSON decoding, CSV cells, Go literals)
// into a Value. Unsupported types are stringified.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return String("")
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case []string:
		return List(t...)
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, FromAny(item).AsString())
		}
		return List(items...)
	case Map:
		return Object(t)
	case map[string]any:
		var m Map
		for _, key := range sortedKeys(t) {
			m.Set(key, FromAny(t[key]))
		}
		return Object(m)
	default:
		return String(fmt.Sprint(t))
	}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v is an empty string, empty list or empty object.
func (v Value) IsZero() bool {
	switch v.kind {
	case KindString:
		return v.str == ""
	case KindList:
		return len(v.list) == 0
	case KindObject:
		return v.obj == nil || v.obj.Len() == 0
	default:
		return false
	}
}

// AsString renders any variant as display text. Lists are joined with ", ".
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindList:
		return strings.Join(v.list, ", ")
	case KindObject:
		if v.obj == nil {
			return ""
		}
		parts := make([]string, 0, v.obj.Len())
		for _, key := range v.obj.Keys() {
			val, _ := v.obj.Get(key)
			parts = append(parts, key+": "+val.AsString())
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// AsList returns list items. A string is split on commas and semicolons so
// `authors: "A, B"` and `authors: [A, B]` read the same.
func (v Value) AsList() []string {
	switch v.kind {
	case KindList:
		return append([]string(nil), v.list...)
	case KindString:
		return splitList(v.str)
	case KindNumber, KindBool:
		return []string{v.AsString()}
	default:
		return nil
	}
}

// AsNumber returns the numeric value, parsing strings when possible.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// AsBool returns the boolean value, parsing strings when possible.
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.flag, true
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.str))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// AsObject returns the nested map.
func (v Value) AsObject() (Map, bool) {
	if v.kind != KindObject || v.obj == nil {
		return Map{}, false
	}
	return v.obj.Clone(), true
}

// Equal compares two values structurally.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.flag == other.flag
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != other.list[i] {
				return false
			}
		}
		return true
	case KindObject:
		var a, b Map
		if v.obj != nil {
			a = *v.obj
		}
		if other.obj != nil {
			b = *other.obj
		}
		return a.Equal(b)
	}
	return false
}

func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		return List(v.list...)
	case KindObject:
		if v.obj == nil {
			return Value{kind: KindObject}
		}
		return Object(*v.obj)
	default:
		return v
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
