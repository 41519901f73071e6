package tensor

import "fmt"

// Tensor is a dense host tensor. Values are stored as float64 regardless of
// DType; the orchestrator only compares and measures them.
type Tensor struct {
	Shape Shape     `msgpack:"shape"`
	DType DType     `msgpack:"dtype"`
	Data  []float64 `msgpack:"data"`
}

// New builds a tensor and checks that data fits the shape.
func New(dtype DType, shape Shape, data []float64) (*Tensor, error) {
	t := &Tensor{Shape: shape.Clone(), DType: dtype, Data: data}
	if got, want := len(data), t.Size(); got != want {
		return nil, fmt.Errorf("tensor of shape %s needs %d values, got %d", shape, want, got)
	}
	return t, nil
}

// Zeros builds a zero-filled tensor.
func Zeros(dtype DType, shape Shape) *Tensor {
	t := &Tensor{Shape: shape.Clone(), DType: dtype}
	t.Data = make([]float64, t.Size())
	return t
}

// NDim returns the tensor rank.
func (t *Tensor) NDim() int {
	return len(t.Shape)
}

// Size returns the number of elements implied by the shape.
func (t *Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Tile returns a copy of t whose axis has size n, filled by repeating the
// existing slices along that axis cyclically. It is used to grow a sample to
// a larger batch.
func (t *Tensor) Tile(axis, n int) (*Tensor, error) {
	if axis < 0 || axis >= t.NDim() {
		return nil, fmt.Errorf("axis %d is out of range for shape %s", axis, t.Shape)
	}
	k := t.Shape[axis]
	if k == 0 || n < 1 {
		return nil, fmt.Errorf("cannot tile axis %d of shape %s to size %d", axis, t.Shape, n)
	}

	outer, inner := 1, 1
	for _, d := range t.Shape[:axis] {
		outer *= d
	}
	for _, d := range t.Shape[axis+1:] {
		inner *= d
	}

	shape := t.Shape.Clone()
	shape[axis] = n
	data := make([]float64, 0, outer*n*inner)
	for o := range outer {
		base := o * k * inner
		for j := range n {
			src := base + (j%k)*inner
			data = append(data, t.Data[src:src+inner]...)
		}
	}
	return &Tensor{Shape: shape, DType: t.DType, Data: data}, nil
}
