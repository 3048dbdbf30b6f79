package value

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Parse converts text into a Value of the given kind.
//
// Vectors accept either a comma-separated list of numbers or a hex color
// ("#rrggbb"), which becomes a three component RGB vector in [0,1].
// Opaque values are base64 encoded.
func Parse(kind Kind, text string) (Value, error) {
	s := strings.TrimSpace(text)
	switch kind {
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", text, err)
		}
		return Bool(b), nil
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse int %q: %w", text, err)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse float %q: %w", text, err)
		}
		return Float(f), nil
	case KindText:
		return Text(text), nil
	case KindVector:
		return parseVector(s)
	case KindOpaque:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("parse opaque: %w", err)
		}
		return Opaque(b), nil
	default:
		return Value{}, fmt.Errorf("cannot parse into kind %s", kind)
	}
}

func parseVector(s string) (Value, error) {
	if strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(s)
		if err != nil {
			return Value{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		return Vector(c.R, c.G, c.B), nil
	}
	if s == "" {
		return Vector(), nil
	}
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse vector component %q: %w", f, err)
		}
		out = append(out, x)
	}
	return Value{kind: KindVector, v: out}, nil
}

// Hex formats a three component vector as a "#rrggbb" color. Components are
// clamped to [0,1].
func (v Value) Hex() (string, bool) {
	if v.kind != KindVector || len(v.v) != 3 {
		return "", false
	}
	return colorful.Color{R: v.v[0], G: v.v[1], B: v.v[2]}.Clamped().Hex(), true
}
