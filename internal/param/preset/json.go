package preset

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/paramtree/internal/param/value"
)

// JSONCodec stores presets as JSON documents of the form
//
//	{"name": "...", "saved_at": "...", "systems": {"mesh": {"deflection": {"type": "float", "value": 0.5}}}}
type JSONCodec struct{}

// Name implements Codec.
func (JSONCodec) Name() string { return "json" }

// Extension implements Codec.
func (JSONCodec) Extension() string { return ".json" }

// Encode implements Codec. Non-finite floats are rejected because JSON has
// no representation for them.
func (JSONCodec) Encode(doc *Document) ([]byte, error) {
	buf := []byte(`{}`)
	var err error
	if buf, err = sjson.SetBytes(buf, "name", doc.Name); err != nil {
		return nil, err
	}
	if buf, err = sjson.SetBytes(buf, "saved_at", doc.SavedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if buf, err = sjson.SetRawBytes(buf, "systems", []byte(`{}`)); err != nil {
		return nil, err
	}
	for _, sys := range doc.SystemNames() {
		params := doc.Systems[sys]
		if buf, err = sjson.SetRawBytes(buf, "systems."+escapeKey(sys), []byte(`{}`)); err != nil {
			return nil, err
		}
		for path, v := range params {
			raw, err := jsonValue(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", sys, path, err)
			}
			key := "systems." + escapeKey(sys) + "." + escapeKey(path)
			if buf, err = sjson.SetBytes(buf, key, raw); err != nil {
				return nil, err
			}
		}
	}
	return pretty.PrettyOptions(buf, &pretty.Options{Width: 80, Indent: "  ", SortKeys: true}), nil
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ParseError{Format: "json", Err: fmt.Errorf("malformed document")}
	}
	root := gjson.ParseBytes(data)

	var savedAt time.Time
	if s := root.Get("saved_at").String(); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, &ParseError{Format: "json", Err: fmt.Errorf("saved_at: %w", err)}
		}
		savedAt = t
	}
	doc := NewDocument(root.Get("name").String(), savedAt)

	var derr error
	root.Get("systems").ForEach(func(sys, params gjson.Result) bool {
		params.ForEach(func(path, raw gjson.Result) bool {
			v, err := decodeJSONValue(raw)
			if err != nil {
				derr = fmt.Errorf("%s.%s: %w", sys.String(), path.String(), err)
				return false
			}
			doc.Set(sys.String(), path.String(), v)
			return true
		})
		return derr == nil
	})
	if derr != nil {
		return nil, derr
	}
	return doc, nil
}

func jsonValue(v value.Value) (map[string]any, error) {
	out := map[string]any{"type": v.Kind().String()}
	switch v.Kind() {
	case value.KindFloat:
		f, _ := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite float", ErrUnsupportedValue)
		}
		out["value"] = f
	case value.KindVector:
		vec, _ := v.AsVector()
		for _, f := range vec {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: non-finite vector component", ErrUnsupportedValue)
			}
		}
		if vec == nil {
			vec = []float64{}
		}
		out["value"] = vec
	case value.KindOpaque:
		b, _ := v.AsOpaque()
		out["value"] = base64.StdEncoding.EncodeToString(b)
	case value.KindBool, value.KindInt, value.KindText:
		out["value"] = v.Interface()
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, v.Kind())
	}
	return out, nil
}

func decodeJSONValue(raw gjson.Result) (value.Value, error) {
	kind, err := value.ParseKind(raw.Get("type").String())
	if err != nil {
		return value.Value{}, err
	}
	payload := raw.Get("value")
	if !payload.Exists() {
		return value.Value{}, fmt.Errorf("%w: %s value has no payload", ErrUnsupportedValue, kind)
	}
	switch kind {
	case value.KindBool:
		return value.Bool(payload.Bool()), nil
	case value.KindInt:
		return value.Int(payload.Int()), nil
	case value.KindFloat:
		return value.Float(payload.Float()), nil
	case value.KindText:
		return value.Text(payload.String()), nil
	case value.KindVector:
		items := payload.Array()
		vec := make([]float64, len(items))
		for i, it := range items {
			vec[i] = it.Float()
		}
		return value.Vector(vec...), nil
	case value.KindOpaque:
		return value.Parse(value.KindOpaque, payload.String())
	default:
		return value.Value{}, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, kind)
	}
}

var keyEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
)

// escapeKey escapes sjson path metacharacters so a key is used literally.
func escapeKey(k string) string {
	return keyEscaper.Replace(k)
}
