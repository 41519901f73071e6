package dataloader

import (
	"fmt"

	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/tensor"
)

// Validate checks the structure of one sample.
func Validate(sample tensor.Sample) error {
	if sample.Len() == 0 {
		return faults.UserInput("sample is empty: expected a tensor, a sequence of tensors or a mapping of names to tensors")
	}
	switch sample.Kind {
	case tensor.KindSingle:
		if sample.Len() != 1 {
			return faults.UserInput("single-tensor sample holds %d tensors", sample.Len())
		}
	case tensor.KindTuple:
	case tensor.KindMap:
		if len(sample.Names) != sample.Len() {
			return faults.UserInput("mapping sample has %d names for %d tensors", len(sample.Names), sample.Len())
		}
		seen := make(map[string]struct{}, len(sample.Names))
		for _, name := range sample.Names {
			if _, ok := seen[name]; ok {
				return faults.UserInput("mapping sample repeats key %q", name)
			}
			seen[name] = struct{}{}
		}
	default:
		return faults.UserInput("unsupported sample kind %s", sample.Kind)
	}
	for i, t := range sample.Tensors {
		if t == nil {
			return faults.UserInput("sample tensor %d is nil", i)
		}
		if len(t.Data) != t.Size() {
			return faults.UserInput("sample tensor %d of shape %s holds %d values", i, t.Shape, len(t.Data))
		}
	}
	return nil
}

// Extract selects the tensors for names from a sample and returns them as a
// mapping sample ordered like names. Positional samples must carry exactly
// one tensor per name.
func Extract(sample tensor.Sample, names []string) (tensor.Sample, error) {
	out := tensor.Sample{Kind: tensor.KindMap}
	switch sample.Kind {
	case tensor.KindMap:
		for _, name := range names {
			t, ok := sample.Lookup(name)
			if !ok {
				return tensor.Sample{}, faults.UserInput("sample is missing tensor %q, available keys: %v", name, sample.Names)
			}
			out.Set(name, t)
		}
	default:
		if sample.Len() != len(names) {
			return tensor.Sample{}, faults.UserInput("sample is a %s of %d tensors but %d names are declared: %v",
				sample.Kind, sample.Len(), len(names), names)
		}
		for i, name := range names {
			out.Set(name, sample.Tensors[i])
		}
	}
	return out, nil
}

// DefaultNames derives tensor names from a sample: mapping keys in order,
// otherwise input__0, input__1, ...
func DefaultNames(sample tensor.Sample) []string {
	if sample.Kind == tensor.KindMap {
		return append([]string(nil), sample.Names...)
	}
	names := make([]string, sample.Len())
	for i := range names {
		names[i] = fmt.Sprintf("input__%d", i)
	}
	return names
}
