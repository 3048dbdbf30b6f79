// Package value defines the typed parameter value stored in parameter trees.
//
// A Value is a small tagged union: exactly one of its payloads is meaningful,
// selected by Kind. The zero Value has KindNone and is used as the "empty"
// result for lookups that do not resolve.
package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which payload a Value carries.
type Kind uint8

const (
	// KindNone is the kind of the zero Value.
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindVector
	KindOpaque
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindVector:
		return "vector"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return KindNone, nil
	case "bool":
		return KindBool, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "text", "string":
		return KindText, nil
	case "vector":
		return KindVector, nil
	case "opaque", "blob":
		return KindOpaque, nil
	default:
		return KindNone, fmt.Errorf("unknown value kind %q", name)
	}
}

// Value is an immutable parameter value.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	v    []float64
	o    []byte
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Text returns a text Value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Vector returns a vector Value. The slice is copied.
func Vector(v ...float64) Value {
	return Value{kind: KindVector, v: append([]float64(nil), v...)}
}

// Opaque returns a Value holding an uninterpreted byte blob. The slice is copied.
func Opaque(b []byte) Value {
	return Value{kind: KindOpaque, o: append([]byte(nil), b...)}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v carries a payload.
func (v Value) IsValid() bool { return v.kind != KindNone }

// AsBool returns the boolean payload and whether v is a KindBool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload and whether v is a KindInt.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload and whether v is a KindFloat.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsText returns the text payload and whether v is a KindText.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsVector returns a copy of the vector payload and whether v is a KindVector.
func (v Value) AsVector() ([]float64, bool) {
	if v.kind != KindVector {
		return nil, false
	}
	return append([]float64(nil), v.v...), true
}

// AsOpaque returns a copy of the blob payload and whether v is a KindOpaque.
func (v Value) AsOpaque() ([]byte, bool) {
	if v.kind != KindOpaque {
		return nil, false
	}
	return append([]byte(nil), v.o...), true
}

// Numeric returns v as a float64 when v is an Int or a Float.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// IsNumeric reports whether v is an Int or a Float.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// Equal reports whether v and other have the same kind and payload.
// Int(1) and Float(1) are not equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f || (math.IsNaN(v.f) && math.IsNaN(other.f))
	case KindText:
		return v.s == other.s
	case KindVector:
		if len(v.v) != len(other.v) {
			return false
		}
		for i := range v.v {
			if v.v[i] != other.v[i] {
				return false
			}
		}
		return true
	case KindOpaque:
		return bytes.Equal(v.o, other.o)
	}
	return false
}

// Interface returns the payload as a plain Go value. Vectors and blobs are copied.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindVector:
		return append([]float64(nil), v.v...)
	case KindOpaque:
		return append([]byte(nil), v.o...)
	default:
		return nil
	}
}

// String formats the payload for display.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "<none>"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindVector:
		parts := make([]string, len(v.v))
		for i, f := range v.v {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, ",")
	case KindOpaque:
		return fmt.Sprintf("<%d bytes>", len(v.o))
	}
	return "<invalid>"
}

// GoString implements fmt.GoStringer for readable test failures.
func (v Value) GoString() string {
	if v.kind == KindText {
		return fmt.Sprintf("value.Text(%q)", v.s)
	}
	return fmt.Sprintf("value.%s(%s)", v.kind, v.String())
}

// Of converts a plain Go value into a Value.
func Of(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return Text(t), nil
	case []float64:
		return Vector(t...), nil
	case []byte:
		return Opaque(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}
