package tensor

import "fmt"

// SampleKind tells how a sample packs its tensors.
type SampleKind int

const (
	// KindSingle is one bare tensor.
	KindSingle SampleKind = iota
	// KindTuple is an ordered sequence of tensors.
	KindTuple
	// KindMap is a name to tensor mapping with stable order.
	KindMap
)

func (k SampleKind) String() string {
	switch k {
	case KindSingle:
		return "tensor"
	case KindTuple:
		return "tuple"
	case KindMap:
		return "mapping"
	default:
		return fmt.Sprintf("SampleKind(%d)", int(k))
	}
}

// Sample is one unit of model input or output.
type Sample struct {
	Kind    SampleKind `msgpack:"kind"`
	Names   []string   `msgpack:"names,omitempty"`
	Tensors []*Tensor  `msgpack:"tensors"`
}

// NamedTensor pairs a name with a tensor for building mapping samples.
type NamedTensor struct {
	Name   string
	Tensor *Tensor
}

// SingleSample wraps one tensor.
func SingleSample(t *Tensor) Sample {
	return Sample{Kind: KindSingle, Tensors: []*Tensor{t}}
}

// TupleSample wraps an ordered sequence of tensors.
func TupleSample(ts ...*Tensor) Sample {
	return Sample{Kind: KindTuple, Tensors: ts}
}

// MapSample builds a named sample. A repeated name replaces the earlier tensor
// in place.
func MapSample(pairs ...NamedTensor) Sample {
	s := Sample{Kind: KindMap}
	for _, p := range pairs {
		s.Set(p.Name, p.Tensor)
	}
	return s
}

// Set inserts or replaces a named tensor; only valid on mapping samples.
func (s *Sample) Set(name string, t *Tensor) {
	for i, n := range s.Names {
		if n == name {
			s.Tensors[i] = t
			return
		}
	}
	s.Names = append(s.Names, name)
	s.Tensors = append(s.Tensors, t)
}

// Len returns the number of tensors in the sample.
func (s Sample) Len() int {
	return len(s.Tensors)
}

// Lookup returns a tensor of a mapping sample by name.
func (s Sample) Lookup(name string) (*Tensor, bool) {
	for i, n := range s.Names {
		if n == name {
			return s.Tensors[i], true
		}
	}
	return nil, false
}

// Tuple returns the tensors positionally, treating a single tensor as a
// one-element tuple.
func (s Sample) Tuple() []*Tensor {
	return s.Tensors
}
