// Package canonjson serializes key/value pairs as canonical JSON: object keys
// keep their insertion order and values are encoded without HTML or unicode
// escaping, so the same fields always produce the same bytes. The automation
// hash is defined over this serialization.
package canonjson

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Object is a single-use ordered JSON object builder.
type Object struct {
	buf bytes.Buffer
	n   int
}

// New returns an empty object.
func New() *Object {
	o := &Object{}
	o.buf.WriteByte('{')
	return o
}

func (o *Object) beginKey(k string) {
	if o.n > 0 {
		o.buf.WriteByte(',')
	}
	o.n++
	// Keys are fixed ASCII identifiers; no escaping needed.
	o.buf.WriteByte('"')
	o.buf.WriteString(k)
	o.buf.WriteString(`":`)
}

// Null writes k: null.
func (o *Object) Null(k string) *Object {
	o.beginKey(k)
	o.buf.WriteString("null")
	return o
}

// String writes k with a JSON-encoded string value. Unicode stays raw and
// slashes are not escaped.
func (o *Object) String(k, v string) *Object {
	o.beginKey(k)
	writeJSONString(&o.buf, v)
	return o
}

// OptString writes the string or null when v is nil.
func (o *Object) OptString(k string, v *string) *Object {
	if v == nil {
		return o.Null(k)
	}
	return o.String(k, *v)
}

// Int writes an integer value.
func (o *Object) Int(k string, v int64) *Object {
	o.beginKey(k)
	o.buf.WriteString(strconv.FormatInt(v, 10))
	return o
}

// OptInt64 writes the integer or null when v is nil.
func (o *Object) OptInt64(k string, v *int64) *Object {
	if v == nil {
		return o.Null(k)
	}
	return o.Int(k, *v)
}

// OptInt writes the integer or null when v is nil.
func (o *Object) OptInt(k string, v *int) *Object {
	if v == nil {
		return o.Null(k)
	}
	return o.Int(k, int64(*v))
}

// Bool writes true or false.
func (o *Object) Bool(k string, v bool) *Object {
	o.beginKey(k)
	o.buf.WriteString(strconv.FormatBool(v))
	return o
}

// Float writes the shortest decimal representation that round-trips, e.g.
// 2 -> "2", 2.5 -> "2.5". Trailing zeros never appear.
func (o *Object) Float(k string, v float64) *Object {
	o.beginKey(k)
	o.buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	return o
}

// OptFloat writes the number or null when v is nil.
func (o *Object) OptFloat(k string, v *float64) *Object {
	if v == nil {
		return o.Null(k)
	}
	return o.Float(k, *v)
}

// Raw embeds already-serialized JSON verbatim. Empty raw becomes null.
func (o *Object) Raw(k string, raw json.RawMessage) *Object {
	if len(raw) == 0 {
		return o.Null(k)
	}
	o.beginKey(k)
	o.buf.Write(raw)
	return o
}

// Bytes returns the closed serialization. The object must not be written to
// afterwards.
func (o *Object) Bytes() []byte {
	out := make([]byte, 0, o.buf.Len()+1)
	out = append(out, o.buf.Bytes()...)
	return append(out, '}')
}

func writeJSONString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a plain string cannot fail.
	_ = enc.Encode(s)
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
}
