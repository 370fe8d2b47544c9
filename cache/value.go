package cache

import (
	"bytes"
	"strconv"
	"unicode/utf8"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindBytes
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is the closed set of things a Cache can hold: text, a binary blob,
// an integer or a floating point number. The raw representation is what a
// coercion sees at read time.
type Value struct {
	kind Kind
	raw  []byte
}

// Text returns a text Value.
func Text(s string) Value {
	return Value{kind: KindText, raw: []byte(s)}
}

// Bytes returns a binary Value. The slice is copied.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, raw: append([]byte{}, b...)}
}

// Int returns an integer Value.
func Int(i int64) Value {
	return Value{kind: KindInt, raw: strconv.AppendInt(nil, i, 10)}
}

// Float returns a floating point Value.
func Float(f float64) Value {
	return Value{kind: KindFloat, raw: strconv.AppendFloat(nil, f, 'g', -1, 64)}
}

func newValue(kind Kind, raw []byte) (Value, error) {
	switch kind {
	case KindText, KindBytes, KindInt, KindFloat:
		return Value{kind: kind, raw: raw}, nil
	}
	return Value{}, coercionError(nil, "cache: unknown value kind %d", kind)
}

func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v was never assigned.
func (v Value) IsZero() bool { return v.kind == 0 }

// Raw returns a copy of the stored representation.
func (v Value) Raw() []byte {
	return append([]byte{}, v.raw...)
}

// Len is the length in bytes of the raw representation.
func (v Value) Len() int { return len(v.raw) }

// Equal reports whether both values have the same kind and representation.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && bytes.Equal(v.raw, o.raw)
}

// String renders the value for logs and call history.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return strconv.Quote(string(v.raw))
	case KindBytes:
		return "b" + strconv.Quote(string(v.raw))
	case KindInt, KindFloat:
		return string(v.raw)
	default:
		return "<nil>"
	}
}

// AsText interprets the raw representation as UTF-8 text.
func (v Value) AsText() (string, error) {
	if v.IsZero() {
		return "", coercionError(nil, "cache: empty value as text")
	}
	if !utf8.Valid(v.raw) {
		return "", coercionError(nil, "cache: %s value is not valid utf-8", v.kind)
	}
	return string(v.raw), nil
}

// AsInt parses the raw representation as a base-10 integer.
func (v Value) AsInt() (int64, error) {
	if v.IsZero() {
		return 0, coercionError(nil, "cache: empty value as int")
	}
	i, err := strconv.ParseInt(string(v.raw), 10, 64)
	if err != nil {
		return 0, coercionError(err, "cache: %s value %q as int", v.kind, v.raw)
	}
	return i, nil
}

// AsFloat parses the raw representation as a 64-bit float.
func (v Value) AsFloat() (float64, error) {
	if v.IsZero() {
		return 0, coercionError(nil, "cache: empty value as float")
	}
	f, err := strconv.ParseFloat(string(v.raw), 64)
	if err != nil {
		return 0, coercionError(err, "cache: %s value %q as float", v.kind, v.raw)
	}
	return f, nil
}

// AsBytes returns the raw representation. It never fails for a set value.
func (v Value) AsBytes() ([]byte, error) {
	if v.IsZero() {
		return nil, coercionError(nil, "cache: empty value as bytes")
	}
	return v.Raw(), nil
}

// Coercion converts a stored Value into the caller's type.
type Coercion[T any] func(Value) (T, error)

var (
	// AsText is the Coercion used by RetrieveText.
	AsText Coercion[string] = Value.AsText
	// AsInt is the Coercion used by RetrieveInt.
	AsInt Coercion[int64] = Value.AsInt
	// AsFloat is the Coercion used by RetrieveFloat.
	AsFloat Coercion[float64] = Value.AsFloat
	// AsBytes is the Coercion used by RetrieveBytes.
	AsBytes Coercion[[]byte] = Value.AsBytes
)
