// Package preset persists named snapshots of parameter values.
//
// A Document captures, for every system, every parameter path and its value.
// Stores only promise exact round-trip fidelity of those values; the on-disk
// syntax depends on the chosen backend and codec.
package preset

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dshills/paramtree/internal/param/value"
)

// Errors returned by preset stores.
var (
	// ErrNotFound indicates no preset with the given name exists.
	ErrNotFound = errors.New("preset not found")

	// ErrInvalidName indicates a name unsuitable as a preset key.
	ErrInvalidName = errors.New("invalid preset name")

	// ErrUnsupportedValue indicates a value the codec cannot represent.
	ErrUnsupportedValue = errors.New("unsupported preset value")
)

// ParseError reports a document that could not be decoded.
type ParseError struct {
	// Format is the codec name.
	Format string
	// Path is the file the document was read from, when known.
	Path string
	// Line and Column locate the error when the decoder reports it.
	Line   int
	Column int
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	src := e.Path
	if src == "" {
		src = "<" + e.Format + ">"
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %v", src, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %v", src, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks that name can be used as a preset key.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Document is a named snapshot of parameter values grouped by system.
type Document struct {
	Name    string
	SavedAt time.Time
	Systems map[string]map[string]value.Value
}

// NewDocument returns an empty document.
func NewDocument(name string, savedAt time.Time) *Document {
	return &Document{Name: name, SavedAt: savedAt, Systems: make(map[string]map[string]value.Value)}
}

// Set records a value for system and path.
func (d *Document) Set(system, path string, v value.Value) {
	if d.Systems == nil {
		d.Systems = make(map[string]map[string]value.Value)
	}
	m := d.Systems[system]
	if m == nil {
		m = make(map[string]value.Value)
		d.Systems[system] = m
	}
	m[path] = v
}

// SystemNames returns the system keys in sorted order.
func (d *Document) SystemNames() []string {
	out := make([]string, 0, len(d.Systems))
	for s := range d.Systems {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of values in the document.
func (d *Document) Len() int {
	n := 0
	for _, m := range d.Systems {
		n += len(m)
	}
	return n
}

// Equal reports whether both documents hold the same values. Name and
// timestamps are ignored.
func (d *Document) Equal(other *Document) bool {
	if d.Len() != other.Len() {
		return false
	}
	for sys, m := range d.Systems {
		om := other.Systems[sys]
		for p, v := range m {
			ov, ok := om[p]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
	}
	return true
}

// Store persists preset documents.
type Store interface {
	Save(ctx context.Context, doc *Document) error
	Load(ctx context.Context, name string) (*Document, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// MemoryStore keeps documents in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

// Save stores a copy of doc.
func (s *MemoryStore) Save(_ context.Context, doc *Document) error {
	if err := ValidateName(doc.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Name] = doc.clone()
	return nil
}

// Load returns a copy of the named document.
func (s *MemoryStore) Load(_ context.Context, name string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return doc.clone(), nil
}

// List returns the stored names in sorted order.
func (s *MemoryStore) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for n := range s.docs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes the named document.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.docs, name)
	return nil
}

func (d *Document) clone() *Document {
	out := NewDocument(d.Name, d.SavedAt)
	for sys, m := range d.Systems {
		for p, v := range m {
			out.Set(sys, p, v)
		}
	}
	return out
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLStore)(nil)
)
