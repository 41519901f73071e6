package tensor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dynamic marks a dimension whose size is not fixed at optimization time.
const Dynamic = -1

// Shape is an ordered list of dimension sizes; Dynamic marks a wildcard.
type Shape []int

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Equal reports structural equality.
func (s Shape) Equal(o Shape) bool {
	return slices.Equal(s, o)
}

// IsDynamic reports whether any dimension is a wildcard.
func (s Shape) IsDynamic() bool {
	return slices.Contains(s, Dynamic)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Spec describes one named tensor. It is a value type; use Equal for
// comparison.
type Spec struct {
	Name     string
	Shape    Shape
	DType    DType
	Optional bool
}

// Equal reports structural equality.
func (s Spec) Equal(o Spec) bool {
	return s.Name == o.Name && s.DType == o.DType && s.Optional == o.Optional && s.Shape.Equal(o.Shape)
}

// Validate checks that every dimension is non-negative or Dynamic.
func (s Spec) Validate() error {
	for ax, d := range s.Shape {
		if d < 0 && d != Dynamic {
			return fmt.Errorf("tensor %q axis %d has invalid size %d", s.Name, ax, d)
		}
	}
	return nil
}

// Metadata maps tensor names to specs, preserving insertion order. The order
// decides positional argument order for formats that take positional tensors.
// The zero value is ready to use.
type Metadata struct {
	specs ordered[Spec]
}

// NewMetadata builds metadata from specs in order.
func NewMetadata(specs ...Spec) *Metadata {
	m := &Metadata{}
	for _, s := range specs {
		m.Set(s)
	}
	return m
}

// Add inserts or replaces a spec. Identical names follow last-write-wins.
func (m *Metadata) Add(name string, shape Shape, dtype DType, optional bool) *Metadata {
	m.Set(Spec{Name: name, Shape: shape.Clone(), DType: dtype, Optional: optional})
	return m
}

// Set inserts or replaces a spec keyed by its name.
func (m *Metadata) Set(s Spec) {
	s.Shape = s.Shape.Clone()
	m.specs.set(s.Name, s)
}

// Get returns the spec for name. Absence means "not declared"; callers must
// not substitute a default.
func (m *Metadata) Get(name string) (Spec, bool) {
	if m == nil {
		return Spec{}, false
	}
	s, ok := m.specs.get(name)
	if ok {
		s.Shape = s.Shape.Clone()
	}
	return s, ok
}

// Names returns tensor names in insertion order.
func (m *Metadata) Names() []string {
	if m == nil {
		return nil
	}
	return m.specs.names()
}

// Specs returns copies of all specs in insertion order.
func (m *Metadata) Specs() []Spec {
	out := make([]Spec, 0, m.Len())
	for _, name := range m.Names() {
		s, _ := m.Get(name)
		out = append(out, s)
	}
	return out
}

// Len returns the number of declared tensors.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return m.specs.len()
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	return NewMetadata(m.Specs()...)
}

// Equal compares names, order and specs.
func (m *Metadata) Equal(o *Metadata) bool {
	a, b := m.Specs(), o.Specs()
	return slices.EqualFunc(a, b, func(x, y Spec) bool { return x.Equal(y) })
}

// Validate checks every spec.
func (m *Metadata) Validate() error {
	for _, s := range m.Specs() {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metadata) String() string {
	parts := make([]string, 0, m.Len())
	for _, s := range m.Specs() {
		parts = append(parts, fmt.Sprintf("%s: %s %s", s.Name, s.Shape, s.DType))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

type specDoc struct {
	Shape    []int `yaml:"shape,flow"`
	DType    DType `yaml:"dtype"`
	Optional bool  `yaml:"optional,omitempty"`
}

// MarshalYAML writes metadata as an ordered mapping.
func (m *Metadata) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range m.Specs() {
		var key, val yaml.Node
		key.SetString(s.Name)
		if err := val.Encode(specDoc{Shape: s.Shape, DType: s.DType, Optional: s.Optional}); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &key, &val)
	}
	return node, nil
}

// UnmarshalYAML reads an ordered mapping written by MarshalYAML.
func (m *Metadata) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("tensor metadata: expected mapping, got %v", value.Tag)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		var doc specDoc
		if err := value.Content[i+1].Decode(&doc); err != nil {
			return fmt.Errorf("tensor metadata %q: %w", value.Content[i].Value, err)
		}
		m.Set(Spec{Name: value.Content[i].Value, Shape: doc.Shape, DType: doc.DType, Optional: doc.Optional})
	}
	return nil
}
