// Package dataloader defines the data source contract consumed by metadata
// inference and the sample plumbing around it: validation, extraction by
// tensor name and msgpack dumps in the workspace.
package dataloader

import (
	"iter"

	"github.com/specialistvlad/gridnav/internal/tensor"
)

// Source is a bounded, re-iterable sequence of samples. Len reports the
// number of samples when the source knows it; strict length checks require
// a sized source.
type Source interface {
	Len() (int, bool)
	All() iter.Seq[tensor.Sample]
}

// SliceSource serves samples from memory.
type SliceSource struct {
	samples []tensor.Sample
}

// FromSlice builds a sized source.
func FromSlice(samples ...tensor.Sample) *SliceSource {
	return &SliceSource{samples: samples}
}

func (s *SliceSource) Len() (int, bool) {
	return len(s.samples), true
}

func (s *SliceSource) All() iter.Seq[tensor.Sample] {
	return func(yield func(tensor.Sample) bool) {
		for _, sample := range s.samples {
			if !yield(sample) {
				return
			}
		}
	}
}

// Samples returns the backing samples.
func (s *SliceSource) Samples() []tensor.Sample {
	return s.samples
}

// funcSource adapts a generator with no known length.
type funcSource struct {
	seq iter.Seq[tensor.Sample]
}

// FromSeq wraps a generator. The resulting source reports no length, so it
// can only be consumed with length checks disabled.
func FromSeq(seq iter.Seq[tensor.Sample]) Source {
	return &funcSource{seq: seq}
}

func (f *funcSource) Len() (int, bool)             { return 0, false }
func (f *funcSource) All() iter.Seq[tensor.Sample] { return f.seq }

// Take collects up to n samples from the source.
func Take(src Source, n int) []tensor.Sample {
	out := make([]tensor.Sample, 0, max(n, 0))
	if n <= 0 {
		return out
	}
	for sample := range src.All() {
		out = append(out, sample)
		if len(out) == n {
			break
		}
	}
	return out
}

// First returns the first sample, if any.
func First(src Source) (tensor.Sample, bool) {
	for sample := range src.All() {
		return sample, true
	}
	return tensor.Sample{}, false
}
