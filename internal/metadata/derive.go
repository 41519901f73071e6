package metadata

import (
	"slices"

	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/tensor"
)

// DeriveProfile builds the min/opt/max profile of every tensor. The batch
// axis is always profiled down to 1; opt is the median of observed sizes.
func DeriveProfile(axes *AxesShapes, batchDim *int) (*tensor.Profile, error) {
	profile := &tensor.Profile{}
	for _, name := range axes.Names() {
		buckets := axes.Axes(name)
		if len(buckets) == 0 {
			return nil, faults.UserInput("Missing shape information for %s input from dataloader. "+
				"Scalar values are not supported. Wrap the value to add a dimension, e.g. 3 -> [3].", name)
		}
		if err := checkBatchDim(name, len(buckets), batchDim); err != nil {
			return nil, err
		}
		lo := make(tensor.Shape, len(buckets))
		opt := make(tensor.Shape, len(buckets))
		hi := make(tensor.Shape, len(buckets))
		for ax, sizes := range buckets {
			if len(sizes) == 0 {
				return nil, faults.Configuration("no samples observed for tensor %q axis %d", name, ax)
			}
			lo[ax] = slices.Min(sizes)
			opt[ax] = median(sizes)
			hi[ax] = slices.Max(sizes)
			if isBatch(ax, batchDim) {
				lo[ax] = 1
			}
		}
		profile.Add(name, lo, opt, hi)
	}
	return profile, nil
}

// DeriveMetadata marks the batch axis and every axis whose size varies as
// dynamic and fixes the rest to the observed size.
func DeriveMetadata(axes *AxesShapes, batchDim *int, dtypes map[string]tensor.DType) (*tensor.Metadata, error) {
	md := &tensor.Metadata{}
	for _, name := range axes.Names() {
		dtype, ok := dtypes[name]
		if !ok {
			return nil, faults.Internal("no dtype recorded for tensor %q", name)
		}
		buckets := axes.Axes(name)
		if len(buckets) > 0 {
			if err := checkBatchDim(name, len(buckets), batchDim); err != nil {
				return nil, err
			}
		}
		shape := make(tensor.Shape, len(buckets))
		for ax, sizes := range buckets {
			switch {
			case isBatch(ax, batchDim):
				shape[ax] = tensor.Dynamic
			case len(sizes) == 0:
				return nil, faults.Configuration("no samples observed for tensor %q axis %d", name, ax)
			case slices.Min(sizes) != slices.Max(sizes):
				shape[ax] = tensor.Dynamic
			default:
				shape[ax] = sizes[0]
			}
		}
		md.Add(name, shape, dtype, false)
	}
	return md, nil
}

// ApplyUserDynamicAxes forces every user-declared axis to dynamic and
// rejects axes that are dynamic in md but were not declared. Tensors absent
// from md are ignored. md is left untouched; the updated copy is returned.
func ApplyUserDynamicAxes(userAxes map[string][]int, md *tensor.Metadata) (*tensor.Metadata, error) {
	out := md.Clone()
	for _, name := range md.Names() {
		declared, ok := userAxes[name]
		if !ok {
			continue
		}
		spec, _ := md.Get(name)
		shape := spec.Shape.Clone()
		for _, ax := range declared {
			if ax < 0 || ax >= len(shape) {
				return nil, faults.UserInput("In tensor `%s` axis `%d` is out of range for shape %s.", name, ax, spec.Shape)
			}
			shape[ax] = tensor.Dynamic
		}
		for ax, d := range spec.Shape {
			if d == tensor.Dynamic && !slices.Contains(declared, ax) {
				return nil, faults.UserInput("In tensor `%s` axis `%d` is not set as dynamic axes but is dynamic in the dataloader.", name, ax)
			}
		}
		out.Add(name, shape, spec.DType, spec.Optional)
	}
	return out, nil
}

// DefaultInputNames names the inputs of a sample: mapping keys in order, or
// input__0, input__1, ... for positional samples.
func DefaultInputNames(sample tensor.Sample) []string {
	return dataloader.DefaultNames(sample)
}

// AssertConsistentSamples checks that all samples pack their tensors the same
// way: same kind, same arity and, for mappings, the same keys.
func AssertConsistentSamples(samples []tensor.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	first := samples[0]
	for i, s := range samples[1:] {
		if s.Kind != first.Kind || s.Len() != first.Len() {
			return faults.UserInput("sample %d is a %s of %d tensors, but sample 0 is a %s of %d tensors",
				i+1, s.Kind, s.Len(), first.Kind, first.Len())
		}
		if s.Kind == tensor.KindMap && !slices.Equal(s.Names, first.Names) {
			return faults.UserInput("sample %d has keys %v, but sample 0 has keys %v", i+1, s.Names, first.Names)
		}
	}
	return nil
}

// checkBatchDim rejects a batch axis the tensor does not have.
func checkBatchDim(name string, rank int, batchDim *int) error {
	if batchDim == nil || (*batchDim >= 0 && *batchDim < rank) {
		return nil
	}
	return faults.UserInput("Tensor `%s` has rank %d, batch_dim %d is out of range.", name, rank, *batchDim)
}

func isBatch(ax int, batchDim *int) bool {
	return batchDim != nil && ax == *batchDim
}

// median matches int(numpy.median): the mean of the two middle values is
// truncated.
func median(sizes []int) int {
	sorted := slices.Clone(sizes)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
