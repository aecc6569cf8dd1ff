package frontmatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Map is an insertion-ordered mapping from key to Value. The zero value is an
// empty map ready to use.
type Map struct {
	keys   []string
	values map[string]Value
}

// Len returns the number of keys.
func (m Map) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m Map) Keys() []string { return append([]string(nil), m.keys...) }

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	if m.values == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// String returns the display text stored under key, or "".
func (m Map) String(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	return v.AsString()
}

// Set stores v under key. Existing keys keep their position.
func (m *Map) Set(key string, v Value) {
	if m.values == nil {
		m.values = map[string]Value{}
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy.
func (m Map) Clone() Map {
	out := Map{keys: append([]string(nil), m.keys...)}
	if m.values != nil {
		out.values = make(map[string]Value, len(m.values))
		for k, v := range m.values {
			out.values[k] = v.clone()
		}
	}
	return out
}

// Equal reports whether both maps hold the same keys in the same order with
// equal values.
func (m Map) Equal(other Map) bool {
	if len(m.keys) != len(other.keys) {
		return false
	}
	for i, key := range m.keys {
		if other.keys[i] != key {
			return false
		}
		a, _ := m.Get(key)
		b, _ := other.Get(key)
		if !a.Equal(b) {
			return false
		}
	}
	return true
}

// Title returns the `title` key.
func (m Map) Title() string {
	return strings.TrimSpace(m.String("title"))
}

// Authors returns `authors` (or `author`) as a list.
func (m Map) Authors() []string {
	for _, key := range []string{"authors", "author"} {
		if v, ok := m.Get(key); ok {
			return v.AsList()
		}
	}
	return nil
}

// Year returns `year`, falling back to the first four characters of
// `published` or `date` when they look like a year.
func (m Map) Year() string {
	if y := strings.TrimSpace(m.String("year")); y != "" {
		return y
	}
	for _, key := range []string{"published", "date"} {
		raw := strings.TrimSpace(m.String(key))
		if len(raw) >= 4 && isDigits(raw[:4]) {
			return raw[:4]
		}
	}
	return ""
}

// Tags returns `tags` without leading '#'.
func (m Map) Tags() []string {
	v, ok := m.Get("tags")
	if !ok {
		return nil
	}
	raw := v.AsList()
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// PDF returns the raw `pdf` reference (wiki link, relative or vault path).
func (m Map) PDF() string {
	return strings.TrimSpace(m.String("pdf"))
}

// MarshalJSON writes an object that keeps key order.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object preserving key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("frontmatter: expected JSON object, got %v", tok)
	}
	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalJSON writes the natural JSON form of the variant.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.flag)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return v.obj.MarshalJSON()
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON accepts any JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeObject(dec *json.Decoder) (Map, error) {
	var m Map
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Map{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Map{}, fmt.Errorf("frontmatter: expected object key, got %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return Map{}, err
		}
		m.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return Map{}, err
	}
	return m, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{kind: KindObject, obj: &m}, nil
		case '[':
			var items []string
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item.AsString())
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		}
		return Value{}, fmt.Errorf("frontmatter: unexpected delimiter %v", t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return String(t.String()), nil
		}
		return Number(n), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return String(""), nil
	default:
		return String(fmt.Sprint(t)), nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
