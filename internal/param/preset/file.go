package preset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps one file per preset in a directory.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	codec  Codec
	logger *zap.Logger
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileLogger sets the store logger.
func WithFileLogger(l *zap.Logger) FileOption {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileStore creates dir if needed and returns a store writing documents
// with codec.
func NewFileStore(dir string, codec Codec, opts ...FileOption) (*FileStore, error) {
	if codec == nil {
		codec = TOMLCodec{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preset dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	s := &FileStore{dir: abs, codec: codec, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute preset directory.
func (s *FileStore) Dir() string { return s.dir }

// Codec returns the codec used for documents.
func (s *FileStore) Codec() Codec { return s.codec }

// Path returns the file path for a preset name.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+s.codec.Extension())
}

// NameFor returns the preset name for a file in the store directory, or
// false when the file does not belong to the store.
func (s *FileStore) NameFor(path string) (string, bool) {
	if filepath.Dir(path) != s.dir {
		return "", false
	}
	base := filepath.Base(path)
	ext := s.codec.Extension()
	if !strings.HasSuffix(base, ext) {
		return "", false
	}
	name := strings.TrimSuffix(base, ext)
	if ValidateName(name) != nil {
		return "", false
	}
	return name, true
}

// Save writes doc atomically, replacing any existing preset of the same name.
func (s *FileStore) Save(ctx context.Context, doc *Document) error {
	if err := ValidateName(doc.Name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode preset %s: %w", doc.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+doc.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("save preset %s: %w", doc.Name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("save preset %s: %w", doc.Name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save preset %s: %w", doc.Name, err)
	}
	if err := os.Rename(tmpName, s.Path(doc.Name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save preset %s: %w", doc.Name, err)
	}
	s.logger.Debug("preset saved", zap.String("name", doc.Name), zap.Int("values", doc.Len()))
	return nil
}

// Load reads and decodes the named preset.
func (s *FileStore) Load(ctx context.Context, name string) (*Document, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("load preset %s: %w", name, err)
	}
	doc, err := s.codec.Decode(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return doc, nil
}

// List returns the preset names in the directory in sorted order.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := s.NameFor(filepath.Join(s.dir, e.Name())); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes the named preset file.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete preset %s: %w", name, err)
	}
	return nil
}
