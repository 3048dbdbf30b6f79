package registry

import (
	"fmt"
	"strings"
)

// SystemType names a subsystem that owns one parameter tree.
type SystemType uint8

const (
	Geometry SystemType = iota
	Rendering
	Mesh
	Lighting
	Navigation
	Display
	Performance
)

var systemNames = [...]string{
	Geometry:    "geometry",
	Rendering:   "rendering",
	Mesh:        "mesh",
	Lighting:    "lighting",
	Navigation:  "navigation",
	Display:     "display",
	Performance: "performance",
}

// AllSystems returns every system type in declaration order.
func AllSystems() []SystemType {
	out := make([]SystemType, len(systemNames))
	for i := range systemNames {
		out[i] = SystemType(i)
	}
	return out
}

// String returns the system token used in fully-qualified paths.
func (s SystemType) String() string {
	if int(s) < len(systemNames) {
		return systemNames[s]
	}
	return fmt.Sprintf("system(%d)", uint8(s))
}

// Valid reports whether s is a known system.
func (s SystemType) Valid() bool {
	return int(s) < len(systemNames)
}

// ParseSystemType maps a system token to its type. Unknown tokens are an
// error rather than a fallback.
func ParseSystemType(token string) (SystemType, error) {
	t := strings.ToLower(strings.TrimSpace(token))
	for i, name := range systemNames {
		if name == t {
			return SystemType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSystem, token)
}
