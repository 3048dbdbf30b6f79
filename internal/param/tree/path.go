package tree

import (
	"fmt"
	"strings"
)

// Separator joins path segments.
const Separator = "."

// ValidSegment reports whether s is a legal path segment:
// [A-Za-z_][A-Za-z0-9_]*.
func ValidSegment(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// SplitPath validates path and splits it into segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	parts := strings.Split(path, Separator)
	for _, p := range parts {
		if !ValidSegment(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// JoinPath joins non-empty segments with the separator.
func JoinPath(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, Separator)
}

// IsUnder reports whether path equals prefix or lies beneath it.
// The empty prefix matches every path.
func IsUnder(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '.'
}
