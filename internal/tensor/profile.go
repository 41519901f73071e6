package tensor

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// ShapeRange is the min/opt/max operating range of one input.
type ShapeRange struct {
	Min Shape `yaml:"min,flow"`
	Opt Shape `yaml:"opt,flow"`
	Max Shape `yaml:"max,flow"`
}

// Equal reports structural equality.
func (r ShapeRange) Equal(o ShapeRange) bool {
	return r.Min.Equal(o.Min) && r.Opt.Equal(o.Opt) && r.Max.Equal(o.Max)
}

// Validate checks that the three shapes share rank and min <= opt <= max.
func (r ShapeRange) Validate(name string) error {
	if len(r.Min) != len(r.Opt) || len(r.Opt) != len(r.Max) {
		return fmt.Errorf("profile for %q: min %s, opt %s and max %s differ in rank", name, r.Min, r.Opt, r.Max)
	}
	for i := range r.Min {
		if r.Min[i] > r.Opt[i] || r.Opt[i] > r.Max[i] {
			return fmt.Errorf("profile for %q: axis %d must satisfy min <= opt <= max, got %d/%d/%d",
				name, i, r.Min[i], r.Opt[i], r.Max[i])
		}
	}
	return nil
}

// Profile maps input names to shape ranges, in insertion order. It guides the
// compiled-format builder. The zero value is ready to use.
type Profile struct {
	ranges ordered[ShapeRange]
}

// Add inserts or replaces the range for name.
func (p *Profile) Add(name string, min, opt, max Shape) *Profile {
	p.ranges.set(name, ShapeRange{Min: min.Clone(), Opt: opt.Clone(), Max: max.Clone()})
	return p
}

// Get returns the range for name.
func (p *Profile) Get(name string) (ShapeRange, bool) {
	if p == nil {
		return ShapeRange{}, false
	}
	return p.ranges.get(name)
}

// Names returns input names in insertion order.
func (p *Profile) Names() []string {
	if p == nil {
		return nil
	}
	return p.ranges.names()
}

// Len returns the number of inputs in the profile.
func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	return p.ranges.len()
}

// Equal compares names, order and ranges.
func (p *Profile) Equal(o *Profile) bool {
	if !slices.Equal(p.Names(), o.Names()) {
		return false
	}
	for _, name := range p.Names() {
		a, _ := p.Get(name)
		b, _ := o.Get(name)
		if !a.Equal(b) {
			return false
		}
	}
	return true
}

// Validate checks every range.
func (p *Profile) Validate() error {
	for _, name := range p.Names() {
		r, _ := p.Get(name)
		if err := r.Validate(name); err != nil {
			return err
		}
	}
	return nil
}

// MarshalYAML writes the profile as an ordered mapping.
func (p *Profile) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range p.Names() {
		r, _ := p.Get(name)
		var key, val yaml.Node
		key.SetString(name)
		if err := val.Encode(r); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &key, &val)
	}
	return node, nil
}

// UnmarshalYAML reads an ordered mapping written by MarshalYAML.
func (p *Profile) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("profile: expected mapping, got %v", value.Tag)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		var r ShapeRange
		if err := value.Content[i+1].Decode(&r); err != nil {
			return fmt.Errorf("profile %q: %w", value.Content[i].Value, err)
		}
		p.ranges.set(value.Content[i].Value, r)
	}
	return nil
}
