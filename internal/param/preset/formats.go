package preset

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// TOMLCodec stores presets as TOML documents.
type TOMLCodec struct{}

// Name implements Codec.
func (TOMLCodec) Name() string { return "toml" }

// Extension implements Codec.
func (TOMLCodec) Extension() string { return ".toml" }

// Encode implements Codec.
func (TOMLCodec) Encode(doc *Document) ([]byte, error) {
	enc, err := toEncoded(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	e := toml.NewEncoder(&buf)
	e.SetIndentTables(true)
	if err := e.Encode(enc); err != nil {
		return nil, fmt.Errorf("encode toml: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (TOMLCodec) Decode(data []byte) (*Document, error) {
	var enc encodedDocument
	if err := toml.Unmarshal(data, &enc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, &ParseError{Format: "toml", Line: row, Column: col, Err: err}
		}
		return nil, &ParseError{Format: "toml", Err: err}
	}
	return fromEncoded(&enc)
}

// YAMLCodec stores presets as YAML documents.
type YAMLCodec struct{}

// Name implements Codec.
func (YAMLCodec) Name() string { return "yaml" }

// Extension implements Codec.
func (YAMLCodec) Extension() string { return ".yaml" }

// Encode implements Codec.
func (YAMLCodec) Encode(doc *Document) ([]byte, error) {
	enc, err := toEncoded(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	e := yaml.NewEncoder(&buf)
	e.SetIndent(2)
	if err := e.Encode(enc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := e.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (YAMLCodec) Decode(data []byte) (*Document, error) {
	var enc encodedDocument
	if err := yaml.Unmarshal(data, &enc); err != nil {
		return nil, &ParseError{Format: "yaml", Err: err}
	}
	return fromEncoded(&enc)
}
