package tensor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMetadata_AddKeepsOrderAndLastWriteWins(t *testing.T) {
	md := &Metadata{}
	md.Add("b", Shape{Dynamic, 3}, Float32, false)
	md.Add("a", Shape{1}, Int64, false)
	md.Add("b", Shape{Dynamic, 4}, Float16, true)

	assert.Equal(t, []string{"b", "a"}, md.Names())
	spec, ok := md.Get("b")
	require.True(t, ok)
	assert.True(t, spec.Equal(Spec{Name: "b", Shape: Shape{Dynamic, 4}, DType: Float16, Optional: true}))

	_, ok = md.Get("missing")
	assert.False(t, ok)
}

func TestMetadata_GetReturnsCopy(t *testing.T) {
	md := NewMetadata(Spec{Name: "x", Shape: Shape{1, 2}, DType: Float32})
	spec, _ := md.Get("x")
	spec.Shape[0] = 99

	again, _ := md.Get("x")
	assert.Equal(t, Shape{1, 2}, again.Shape)
}

func TestMetadata_Validate(t *testing.T) {
	assert.NoError(t, NewMetadata(Spec{Name: "x", Shape: Shape{Dynamic, 0, 3}}).Validate())
	err := NewMetadata(Spec{Name: "x", Shape: Shape{-2}}).Validate()
	assert.ErrorContains(t, err, `tensor "x" axis 0`)
}

func TestMetadata_YAMLRoundTripKeepsOrder(t *testing.T) {
	md := NewMetadata(
		Spec{Name: "z", Shape: Shape{Dynamic, 224, 224, 3}, DType: Float32},
		Spec{Name: "a", Shape: Shape{Dynamic}, DType: Int64, Optional: true},
	)

	out, err := yaml.Marshal(md)
	require.NoError(t, err)
	assert.Contains(t, string(out), "shape: [-1, 224, 224, 3]")

	back := &Metadata{}
	require.NoError(t, yaml.Unmarshal(out, back))
	assert.True(t, md.Equal(back), "got %s", back)
	assert.Equal(t, []string{"z", "a"}, back.Names())
}

func TestProfile_YAMLRoundTrip(t *testing.T) {
	p := (&Profile{}).
		Add("input_0", Shape{1, 224}, Shape{4, 224}, Shape{8, 224}).
		Add("input_1", Shape{1}, Shape{1}, Shape{1})

	out, err := yaml.Marshal(p)
	require.NoError(t, err)

	back := &Profile{}
	require.NoError(t, yaml.Unmarshal(out, back))
	assert.True(t, p.Equal(back))

	r, ok := back.Get("input_0")
	require.True(t, ok)
	if diff := cmp.Diff(ShapeRange{Min: Shape{1, 224}, Opt: Shape{4, 224}, Max: Shape{8, 224}}, r); diff != "" {
		t.Errorf("range mismatch (-want +got):\n%s", diff)
	}
}

func TestShapeRange_Validate(t *testing.T) {
	assert.NoError(t, ShapeRange{Min: Shape{1}, Opt: Shape{2}, Max: Shape{3}}.Validate("x"))
	assert.ErrorContains(t, ShapeRange{Min: Shape{1}, Opt: Shape{2, 2}, Max: Shape{3}}.Validate("x"), "differ in rank")
	assert.ErrorContains(t, ShapeRange{Min: Shape{4}, Opt: Shape{2}, Max: Shape{3}}.Validate("x"), "min <= opt <= max")
}

func TestTensor_New(t *testing.T) {
	tt, err := New(Float32, Shape{2, 3}, make([]float64, 6))
	require.NoError(t, err)
	assert.Equal(t, 2, tt.NDim())

	_, err = New(Float32, Shape{2, 3}, make([]float64, 5))
	assert.ErrorContains(t, err, "needs 6 values, got 5")
}

func TestSample_MapSetReplacesInPlace(t *testing.T) {
	a := Zeros(Float32, Shape{1})
	b := Zeros(Float32, Shape{2})
	s := MapSample(NamedTensor{"x", a}, NamedTensor{"y", a}, NamedTensor{"x", b})

	assert.Equal(t, []string{"x", "y"}, s.Names)
	got, ok := s.Lookup("x")
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestTensor_Tile(t *testing.T) {
	// shape (2, 2, 1): two rows of a batch of two.
	x, err := New(Float32, Shape{2, 2, 1}, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	tiled, err := x.Tile(1, 3)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3, 1}, tiled.Shape)
	assert.Equal(t, []float64{1, 2, 1, 3, 4, 3}, tiled.Data)

	shrunk, err := x.Tile(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, shrunk.Data)

	_, err = x.Tile(3, 2)
	assert.Error(t, err)
}
