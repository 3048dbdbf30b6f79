package tree

import (
	"errors"
	"fmt"

	"github.com/dshills/paramtree/internal/param/value"
)

// Errors returned by tree operations.
var (
	// ErrNotFound indicates the path does not resolve to a node of the
	// required kind.
	ErrNotFound = errors.New("parameter not found")

	// ErrNotParameter indicates the path resolves to a container or group.
	ErrNotParameter = fmt.Errorf("%w: node is not a parameter", ErrNotFound)

	// ErrInvalidValue indicates the value was rejected by validation.
	ErrInvalidValue = errors.New("invalid parameter value")

	// ErrInvalidPath indicates a malformed dot-separated path.
	ErrInvalidPath = errors.New("invalid parameter path")

	// ErrDuplicateName indicates a child with the same name already exists.
	ErrDuplicateName = errors.New("duplicate child name")

	// ErrKindConflict indicates an existing node has a different kind than
	// the one requested, or a child was requested under a parameter.
	ErrKindConflict = errors.New("node kind conflict")
)

// ValidationCode categorizes validation failures.
type ValidationCode uint8

const (
	// CodeTypeMismatch indicates the value kind differs from the default's kind.
	CodeTypeMismatch ValidationCode = iota
	// CodeOutOfRange indicates a numeric value outside the parameter bounds.
	CodeOutOfRange
	// CodeInvalidBounds indicates bounds that are not numeric or are inverted.
	CodeInvalidBounds
)

// String returns a human-readable name for the code.
func (c ValidationCode) String() string {
	switch c {
	case CodeTypeMismatch:
		return "type_mismatch"
	case CodeOutOfRange:
		return "out_of_range"
	case CodeInvalidBounds:
		return "invalid_bounds"
	default:
		return "unknown"
	}
}

// ValidationError describes why a value was rejected for a parameter.
type ValidationError struct {
	Path    string
	Message string
	Value   value.Value
	Code    ValidationCode
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %s)", e.Path, e.Message, e.Value)
}

// Is reports ErrInvalidValue as a match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidValue
}
