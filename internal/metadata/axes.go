// Package metadata infers tensor metadata and shape profiles from the samples
// a data source yields.
package metadata

import (
	"context"

	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/tensor"
)

// AxesShapes collects, per tensor and per axis, the size observed in every
// sample. Tensor order is the order names were first added.
type AxesShapes struct {
	names  []string
	axes   map[string][][]int
	dtypes map[string]tensor.DType
}

// NewAxesShapes returns an empty collection.
func NewAxesShapes() *AxesShapes {
	return &AxesShapes{axes: map[string][][]int{}, dtypes: map[string]tensor.DType{}}
}

// Set replaces the buckets of a tensor, one bucket per axis. A tensor set
// with no buckets is a scalar.
func (a *AxesShapes) Set(name string, buckets ...[]int) *AxesShapes {
	if _, ok := a.axes[name]; !ok {
		a.names = append(a.names, name)
	}
	copied := make([][]int, len(buckets))
	for i, b := range buckets {
		copied[i] = append([]int(nil), b...)
	}
	a.axes[name] = copied
	return a
}

// SetDType records the dtype of a tensor.
func (a *AxesShapes) SetDType(name string, dtype tensor.DType) *AxesShapes {
	a.dtypes[name] = dtype
	return a
}

// observe appends one sample's shape for name.
func (a *AxesShapes) observe(name string, shape tensor.Shape) {
	buckets := a.axes[name]
	for k, dim := range shape {
		buckets[k] = append(buckets[k], dim)
	}
}

// Names returns tensor names in order.
func (a *AxesShapes) Names() []string {
	return append([]string(nil), a.names...)
}

// Axes returns the per-axis buckets for name.
func (a *AxesShapes) Axes(name string) [][]int {
	return a.axes[name]
}

// DTypes returns the recorded dtypes.
func (a *AxesShapes) DTypes() map[string]tensor.DType {
	out := make(map[string]tensor.DType, len(a.dtypes))
	for k, v := range a.dtypes {
		out[k] = v
	}
	return out
}

// ExtractAxesShapes streams up to n samples from src and records each axis
// size of every named tensor. ranks gives the expected rank per name; a
// sample whose tensor has another rank is rejected.
//
// With checkLen set the source must report its length and must yield at
// least n samples. A source yielding more than n samples is cut at n.
func ExtractAxesShapes(ctx context.Context, src dataloader.Source, names []string, ranks []int, n int, checkLen bool) (*AxesShapes, error) {
	logger := ctxlog.FromContext(ctx)

	if len(ranks) != len(names) {
		return nil, faults.Internal("got %d ranks for %d tensor names", len(ranks), len(names))
	}
	reported := 0
	if checkLen {
		size, ok := src.Len()
		if !ok {
			return nil, faults.Internal("data source does not report its length, unable to check it")
		}
		reported = size
	}

	axes := NewAxesShapes()
	for i, name := range names {
		axes.Set(name, make([][]int, ranks[i])...)
	}

	count := 0
	for sample := range src.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if count >= n {
			logger.Warn("Data source yields more samples than requested, ignoring the rest",
				"requested", n, "reported", reported)
			break
		}
		if err := dataloader.Validate(sample); err != nil {
			return nil, err
		}
		extracted, err := dataloader.Extract(sample, names)
		if err != nil {
			return nil, err
		}
		for i, name := range names {
			t, _ := extracted.Lookup(name)
			if t.NDim() != ranks[i] {
				return nil, faults.UserInput("sample %d: tensor %q has rank %d, expected %d (shape %s)",
					count, name, t.NDim(), ranks[i], t.Shape)
			}
			if count == 0 {
				axes.SetDType(name, t.DType)
			}
			axes.observe(name, t.Shape)
		}
		count++
	}

	if checkLen && count < n {
		return nil, faults.Internal("data source reports %d samples, but only %d samples found", reported, count)
	}
	logger.Debug("Extracted axes shapes", "tensors", len(names), "samples", count)
	return axes, nil
}

// MaxBatchSize returns the largest batch observed on the first tensor, or 0
// when there is no batch axis. A batch axis past the tensor rank is an error.
func MaxBatchSize(axes *AxesShapes, batchDim *int) (int, error) {
	if batchDim == nil || len(axes.names) == 0 {
		return 0, nil
	}
	name := axes.names[0]
	buckets := axes.Axes(name)
	if err := checkBatchDim(name, len(buckets), batchDim); err != nil {
		return 0, err
	}
	out := 0
	for _, v := range buckets[*batchDim] {
		out = max(out, v)
	}
	return out, nil
}
