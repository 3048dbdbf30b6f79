package tree

import (
	"github.com/dshills/paramtree/internal/param/value"
)

// paramDef describes one parameter of a default tree.
type paramDef struct {
	path string
	def  value.Value
	opts []ParameterOption
}

func build(name string, groups map[string]string, specs []paramDef, opts ...Option) *Tree {
	t := New(append([]Option{WithName(name)}, opts...)...)
	for _, s := range specs {
		if _, err := t.CreateParameter(s.path, s.def, s.opts...); err != nil {
			panic("tree: invalid default parameter " + s.path + ": " + err.Error())
		}
	}
	for path, desc := range groups {
		if _, err := t.CreateGroup(path, desc); err != nil {
			panic("tree: invalid default group " + path + ": " + err.Error())
		}
	}
	return t
}

func rng(lo, hi float64) ParameterOption {
	return WithRange(value.Float(lo), value.Float(hi))
}

func xyz(prefix string, x, y, z float64, opts ...ParameterOption) []paramDef {
	return []paramDef{
		{prefix + ".x", value.Float(x), opts},
		{prefix + ".y", value.Float(y), opts},
		{prefix + ".z", value.Float(z), opts},
	}
}

func rgb(prefix string, r, g, b float64) []paramDef {
	unit := rng(0, 1)
	color := WithTags("color")
	return []paramDef{
		{prefix + ".r", value.Float(r), []ParameterOption{unit, color}},
		{prefix + ".g", value.Float(g), []ParameterOption{unit, color}},
		{prefix + ".b", value.Float(b), []ParameterOption{unit, color}},
	}
}

func concat(parts ...[]paramDef) []paramDef {
	var out []paramDef
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// NewGeometryTree returns the default geometry parameters: object transform
// and selection state.
func NewGeometryTree(opts ...Option) *Tree {
	transform := WithTags("transform")
	return build("geometry",
		map[string]string{"position": "Object position", "rotation": "Object rotation in degrees", "scale": "Object scale"},
		concat(
			xyz("position", 0, 0, 0, transform),
			xyz("rotation", 0, 0, 0, transform),
			xyz("scale", 1, 1, 1, transform, WithRange(value.Float(0), value.Value{})),
			[]paramDef{
				{"visible", value.Bool(true), []ParameterOption{WithDescription("Object visibility")}},
				{"selected", value.Bool(false), nil},
			},
		),
		opts...)
}

// NewRenderingTree returns the default material and display parameters.
func NewRenderingTree(opts ...Option) *Tree {
	display := WithTags("display")
	return build("rendering",
		map[string]string{"material": "Surface material", "display": "Display options"},
		concat(
			rgb("material.ambient", 0.6, 0.6, 0.6),
			rgb("material.diffuse", 0.8, 0.8, 0.8),
			rgb("material.specular", 1.0, 1.0, 1.0),
			[]paramDef{
				{"material.shininess", value.Float(30), []ParameterOption{rng(0, 128)}},
				{"material.transparency", value.Float(0), []ParameterOption{rng(0, 1)}},
				{"display.mode", value.Text("Solid"), []ParameterOption{display, WithDescription("Solid, Wireframe or Points")}},
				{"display.showEdges", value.Bool(false), []ParameterOption{display}},
				{"display.showVertices", value.Bool(false), []ParameterOption{display}},
				{"display.edgeWidth", value.Float(1.0), []ParameterOption{display, rng(0.1, 10)}},
				{"display.vertexSize", value.Float(2.0), []ParameterOption{display, rng(0.1, 20)}},
			},
		),
		opts...)
}

// NewMeshTree returns the default tessellation parameters.
func NewMeshTree(opts ...Option) *Tree {
	quality := WithTags("quality")
	return build("mesh",
		map[string]string{"subdivision": "Surface subdivision", "smoothing": "Normal smoothing"},
		[]paramDef{
			{"deflection", value.Float(0.5), []ParameterOption{quality, rng(0.001, 10), WithDescription("Linear deflection")}},
			{"angularDeflection", value.Float(1.0), []ParameterOption{quality, rng(0.01, 180)}},
			{"relative", value.Bool(false), nil},
			{"inParallel", value.Bool(true), nil},
			{"subdivision.enabled", value.Bool(false), nil},
			{"subdivision.levels", value.Int(2), []ParameterOption{quality, WithRange(value.Int(1), value.Int(6))}},
			{"smoothing.enabled", value.Bool(false), nil},
			{"smoothing.creaseAngle", value.Float(30.0), []ParameterOption{rng(0, 180)}},
			{"smoothing.iterations", value.Int(2), []ParameterOption{WithRange(value.Int(1), value.Int(20))}},
		},
		opts...)
}

// NewLightingTree returns the default ambient and main light parameters.
func NewLightingTree(opts ...Option) *Tree {
	return build("lighting",
		map[string]string{"ambient": "Ambient light", "main": "Main light"},
		concat(
			rgb("ambient.color", 0.7, 0.7, 0.7),
			[]paramDef{
				{"ambient.intensity", value.Float(0.8), []ParameterOption{rng(0, 10)}},
				{"main.enabled", value.Bool(true), nil},
				{"main.type", value.Text("directional"), nil},
			},
			xyz("main.position", 0, 0, 0),
			xyz("main.direction", 0.5, 0.5, -1.0),
			rgb("main.color", 1.0, 1.0, 1.0),
			[]paramDef{
				{"main.intensity", value.Float(1.0), []ParameterOption{rng(0, 10)}},
			},
		),
		opts...)
}
