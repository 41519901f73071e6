package runner

import (
	"fmt"
	"math"

	"github.com/specialistvlad/gridnav/internal/tensor"
)

// Tolerance bounds the allowed difference between a variant's outputs and
// the reference: |got - want| <= Atol + Rtol*|want| for every element.
type Tolerance struct {
	Atol float64
	Rtol float64
}

// Diff summarizes how far one output tensor is from the reference.
type Diff struct {
	Tensor    string  `yaml:"tensor"`
	MaxAbsErr float64 `yaml:"max_abs_err"`
	MaxRelErr float64 `yaml:"max_rel_err"`
	Within    bool    `yaml:"within"`
}

// Compare checks every tensor of want against got. A missing tensor or a
// shape mismatch is an error; numerical differences are reported in the
// diffs.
func Compare(got, want tensor.Sample, tol Tolerance) ([]Diff, error) {
	diffs := make([]Diff, 0, len(want.Names))
	for _, name := range want.Names {
		w, _ := want.Lookup(name)
		g, ok := got.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("output %q is missing, got %v", name, got.Names)
		}
		if !g.Shape.Equal(w.Shape) {
			return nil, fmt.Errorf("output %q has shape %s, reference has %s", name, g.Shape, w.Shape)
		}
		d := Diff{Tensor: name, Within: true}
		for i := range w.Data {
			abs := math.Abs(g.Data[i] - w.Data[i])
			if math.IsNaN(abs) {
				d.Within = false
				d.MaxAbsErr = math.Inf(1)
				continue
			}
			d.MaxAbsErr = max(d.MaxAbsErr, abs)
			if w.Data[i] != 0 {
				d.MaxRelErr = max(d.MaxRelErr, abs/math.Abs(w.Data[i]))
			}
			if abs > tol.Atol+tol.Rtol*math.Abs(w.Data[i]) {
				d.Within = false
			}
		}
		diffs = append(diffs, d)
	}
	return diffs, nil
}
