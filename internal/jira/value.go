package jira

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Kind discriminates the JSON shape of a dynamic field value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

// Value wraps one dynamically-typed Jira field value (custom fields, security
// levels, cascading options). Callers branch on Kind and use the explicit
// extractors instead of type-switching on interface{} soup.
type Value struct {
	raw json.RawMessage
}

// NewValue wraps a raw JSON value.
func NewValue(raw json.RawMessage) Value {
	return Value{raw: bytes.TrimSpace(raw)}
}

// Raw returns the underlying JSON.
func (v Value) Raw() json.RawMessage {
	return v.raw
}

// IsNull reports a missing value or JSON null.
func (v Value) IsNull() bool {
	return len(v.raw) == 0 || bytes.Equal(v.raw, []byte("null"))
}

// Kind inspects the first byte of the JSON value.
func (v Value) Kind() Kind {
	if v.IsNull() {
		return KindNull
	}
	switch v.raw[0] {
	case '"':
		return KindString
	case '{':
		return KindObject
	case '[':
		return KindArray
	case 't', 'f':
		return KindBool
	default:
		return KindNumber
	}
}

// AsString decodes a JSON string value.
func (v Value) AsString() (string, bool) {
	if v.Kind() != KindString {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AsNumber decodes a JSON number value.
func (v Value) AsNumber() (float64, bool) {
	if v.Kind() != KindNumber {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v.raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// AsBool decodes a JSON boolean value.
func (v Value) AsBool() (bool, bool) {
	if v.Kind() != KindBool {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v.raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// AsArray decodes the elements of a JSON array.
func (v Value) AsArray() ([]Value, bool) {
	if v.Kind() != KindArray {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(v.raw, &elems); err != nil {
		return nil, false
	}
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[i] = NewValue(e)
	}
	return out, true
}

// Field returns the named member of a JSON object. The second result is false
// for non-objects and absent keys.
func (v Value) Field(name string) (Value, bool) {
	if v.Kind() != KindObject {
		return Value{}, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v.raw, &obj); err != nil {
		return Value{}, false
	}
	raw, ok := obj[name]
	if !ok {
		return Value{}, false
	}
	return NewValue(raw), true
}

// Member is one key/value pair of a JSON object.
type Member struct {
	Key   string
	Value Value
}

// Members returns the object's key/value pairs sorted by key, so walks over
// dynamic payloads are deterministic. The second result is false for
// non-objects.
func (v Value) Members() ([]Member, bool) {
	if v.Kind() != KindObject {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v.raw, &obj); err != nil {
		return nil, false
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Member, len(keys))
	for i, k := range keys {
		out[i] = Member{Key: k, Value: NewValue(obj[k])}
	}
	return out, true
}

// StringField is a convenience for object members that should be strings;
// numbers are accepted and reformatted. Returns "" when absent.
func (v Value) StringField(name string) string {
	f, ok := v.Field(name)
	if !ok {
		return ""
	}
	if s, ok := f.AsString(); ok {
		return s
	}
	if n, ok := f.AsNumber(); ok {
		return trimFloat(n)
	}
	return ""
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
