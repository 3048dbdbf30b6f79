package preset

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/paramtree/internal/param/value"
)

// Codec converts documents to and from bytes.
type Codec interface {
	// Name returns the format name, e.g. "toml".
	Name() string
	// Extension returns the file extension including the dot.
	Extension() string
	Encode(doc *Document) ([]byte, error)
	Decode(data []byte) (*Document, error)
}

// CodecFor returns the codec for a format name.
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "toml", "":
		return TOMLCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown preset format %q", format)
	}
}

// encodedValue is the structured form of a value used by the TOML and YAML
// codecs. Exactly one payload field is set, selected by Type.
type encodedValue struct {
	Type   string    `toml:"type" yaml:"type"`
	Bool   *bool     `toml:"bool,omitempty" yaml:"bool,omitempty"`
	Int    *int64    `toml:"int,omitempty" yaml:"int,omitempty"`
	Float  *float64  `toml:"float,omitempty" yaml:"float,omitempty"`
	Text   *string   `toml:"text,omitempty" yaml:"text,omitempty"`
	Vector []float64 `toml:"vector,omitempty" yaml:"vector,omitempty,flow"`
	Opaque string    `toml:"opaque,omitempty" yaml:"opaque,omitempty"`
}

type encodedDocument struct {
	Name    string                             `toml:"name" yaml:"name"`
	SavedAt time.Time                          `toml:"saved_at" yaml:"saved_at"`
	Systems map[string]map[string]encodedValue `toml:"systems" yaml:"systems"`
}

func encodeValue(v value.Value) (encodedValue, error) {
	ev := encodedValue{Type: v.Kind().String()}
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		ev.Bool = &b
	case value.KindInt:
		i, _ := v.AsInt()
		ev.Int = &i
	case value.KindFloat:
		f, _ := v.AsFloat()
		ev.Float = &f
	case value.KindText:
		s, _ := v.AsText()
		ev.Text = &s
	case value.KindVector:
		ev.Vector, _ = v.AsVector()
	case value.KindOpaque:
		b, _ := v.AsOpaque()
		ev.Opaque = base64.StdEncoding.EncodeToString(b)
	default:
		return ev, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, v.Kind())
	}
	return ev, nil
}

func decodeValue(ev encodedValue) (value.Value, error) {
	kind, err := value.ParseKind(ev.Type)
	if err != nil {
		return value.Value{}, err
	}
	missing := func() (value.Value, error) {
		return value.Value{}, fmt.Errorf("%w: %s value has no payload", ErrUnsupportedValue, kind)
	}
	switch kind {
	case value.KindBool:
		if ev.Bool == nil {
			return missing()
		}
		return value.Bool(*ev.Bool), nil
	case value.KindInt:
		if ev.Int == nil {
			return missing()
		}
		return value.Int(*ev.Int), nil
	case value.KindFloat:
		if ev.Float == nil {
			return missing()
		}
		return value.Float(*ev.Float), nil
	case value.KindText:
		if ev.Text == nil {
			return missing()
		}
		return value.Text(*ev.Text), nil
	case value.KindVector:
		return value.Vector(ev.Vector...), nil
	case value.KindOpaque:
		return value.Parse(value.KindOpaque, ev.Opaque)
	default:
		return value.Value{}, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, kind)
	}
}

func toEncoded(doc *Document) (*encodedDocument, error) {
	out := &encodedDocument{
		Name:    doc.Name,
		SavedAt: doc.SavedAt.UTC(),
		Systems: make(map[string]map[string]encodedValue, len(doc.Systems)),
	}
	for sys, params := range doc.Systems {
		m := make(map[string]encodedValue, len(params))
		for path, v := range params {
			ev, err := encodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", sys, path, err)
			}
			m[path] = ev
		}
		out.Systems[sys] = m
	}
	return out, nil
}

func fromEncoded(enc *encodedDocument) (*Document, error) {
	doc := NewDocument(enc.Name, enc.SavedAt)
	for sys, params := range enc.Systems {
		for path, ev := range params {
			v, err := decodeValue(ev)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", sys, path, err)
			}
			doc.Set(sys, path, v)
		}
	}
	return doc, nil
}
