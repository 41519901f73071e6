package metadata

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func image(batch int) tensor.Sample {
	return tensor.MapSample(tensor.NamedTensor{
		Name:   "input_0",
		Tensor: tensor.Zeros(tensor.Float32, tensor.Shape{batch, 4, 4, 3}),
	})
}

func TestDeriveProfile_ImageExample(t *testing.T) {
	axes := NewAxesShapes().Set("input_0", repeat(1, 5), repeat(224, 5), repeat(224, 5), repeat(3, 5))

	profile, err := DeriveProfile(axes, intp(0))
	require.NoError(t, err)

	r, ok := profile.Get("input_0")
	require.True(t, ok)
	want := tensor.ShapeRange{
		Min: tensor.Shape{1, 224, 224, 3},
		Opt: tensor.Shape{1, 224, 224, 3},
		Max: tensor.Shape{1, 224, 224, 3},
	}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}

	md, err := DeriveMetadata(axes, intp(0), map[string]tensor.DType{"input_0": tensor.Float32})
	require.NoError(t, err)
	spec, ok := md.Get("input_0")
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{-1, 224, 224, 3}, spec.Shape)
}

func TestDeriveProfile_BatchMinIsOneAndOptIsMedian(t *testing.T) {
	testCases := []struct {
		name    string
		buckets [][]int
		batch   *int
		want    tensor.ShapeRange
	}{
		{
			name:    "batch axis profiled down to one",
			buckets: [][]int{{4, 8, 16}, {10, 10, 10}},
			batch:   intp(0),
			want:    tensor.ShapeRange{Min: tensor.Shape{1, 10}, Opt: tensor.Shape{8, 10}, Max: tensor.Shape{16, 10}},
		},
		{
			name:    "no batch axis keeps observed minimum",
			buckets: [][]int{{4, 8, 16}},
			batch:   nil,
			want:    tensor.ShapeRange{Min: tensor.Shape{4}, Opt: tensor.Shape{8}, Max: tensor.Shape{16}},
		},
		{
			name:    "even count median truncates the mean",
			buckets: [][]int{{2, 2}, {3, 8, 1, 4}},
			batch:   intp(0),
			want:    tensor.ShapeRange{Min: tensor.Shape{1, 1}, Opt: tensor.Shape{2, 3}, Max: tensor.Shape{2, 8}},
		},
		{
			name:    "batch axis on second dimension",
			buckets: [][]int{{7, 5, 9}, {2, 6, 3}},
			batch:   intp(1),
			want:    tensor.ShapeRange{Min: tensor.Shape{5, 1}, Opt: tensor.Shape{7, 3}, Max: tensor.Shape{9, 6}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			profile, err := DeriveProfile(NewAxesShapes().Set("x", tc.buckets...), tc.batch)
			require.NoError(t, err)
			got, _ := profile.Get("x")
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("range mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeriveProfile_ScalarIsRejected(t *testing.T) {
	_, err := DeriveProfile(NewAxesShapes().Set("score"), nil)
	require.Error(t, err)
	assert.True(t, faults.IsUserInput(err))
	assert.ErrorContains(t, err, "Missing shape information for score input")
	assert.ErrorContains(t, err, "Scalar values are not supported")
}

func TestDeriveProfile_EmptyBucketIsConfigurationError(t *testing.T) {
	_, err := DeriveProfile(NewAxesShapes().Set("x", []int{}), nil)
	require.Error(t, err)
	assert.True(t, faults.IsConfiguration(err))
}

func TestDeriveMetadata(t *testing.T) {
	axes := NewAxesShapes().
		Set("tokens", []int{2, 2, 2}, []int{16, 32, 16}).
		Set("mask", []int{2, 2, 2}, []int{16, 16, 16})
	dtypes := map[string]tensor.DType{"tokens": tensor.Int64, "mask": tensor.Bool}

	t.Run("constant non-batch axes are fixed", func(t *testing.T) {
		md, err := DeriveMetadata(axes, nil, dtypes)
		require.NoError(t, err)
		mask, _ := md.Get("mask")
		assert.Equal(t, tensor.Shape{2, 16}, mask.Shape)
		assert.Equal(t, tensor.Bool, mask.DType)
	})

	t.Run("varying axes and batch axis are dynamic", func(t *testing.T) {
		md, err := DeriveMetadata(axes, intp(0), dtypes)
		require.NoError(t, err)
		tokens, _ := md.Get("tokens")
		assert.Equal(t, tensor.Shape{-1, -1}, tokens.Shape)
		assert.Equal(t, []string{"tokens", "mask"}, md.Names())
	})

	t.Run("missing dtype is an internal fault", func(t *testing.T) {
		_, err := DeriveMetadata(axes, nil, map[string]tensor.DType{"tokens": tensor.Int64})
		assert.True(t, faults.IsInternal(err))
	})
}

func TestApplyUserDynamicAxes(t *testing.T) {
	md := tensor.NewMetadata(
		tensor.Spec{Name: "x", Shape: tensor.Shape{-1, 224, 3}, DType: tensor.Float32},
		tensor.Spec{Name: "y", Shape: tensor.Shape{-1, -1}, DType: tensor.Float32},
	)

	t.Run("declared axes are forced dynamic", func(t *testing.T) {
		out, err := ApplyUserDynamicAxes(map[string][]int{"x": {0, 1}, "y": {0, 1}}, md)
		require.NoError(t, err)
		x, _ := out.Get("x")
		assert.Equal(t, tensor.Shape{-1, -1, 3}, x.Shape)

		orig, _ := md.Get("x")
		assert.Equal(t, tensor.Shape{-1, 224, 3}, orig.Shape, "input metadata must not change")
	})

	t.Run("declaring twice is idempotent", func(t *testing.T) {
		once, err := ApplyUserDynamicAxes(map[string][]int{"x": {0, 1}}, md)
		require.NoError(t, err)
		twice, err := ApplyUserDynamicAxes(map[string][]int{"x": {0, 1, 1}}, once)
		require.NoError(t, err)
		assert.True(t, once.Equal(twice))
	})

	t.Run("undeclared dynamic axis names tensor and axis", func(t *testing.T) {
		_, err := ApplyUserDynamicAxes(map[string][]int{"y": {0}}, md)
		require.Error(t, err)
		assert.True(t, faults.IsUserInput(err))
		assert.EqualError(t, err, "In tensor `y` axis `1` is not set as dynamic axes but is dynamic in the dataloader.")
	})

	t.Run("unknown tensors are ignored", func(t *testing.T) {
		out, err := ApplyUserDynamicAxes(map[string][]int{"nope": {0}, "x": {0}}, md)
		require.NoError(t, err)
		assert.True(t, md.Equal(out))
	})

	t.Run("axis out of range", func(t *testing.T) {
		_, err := ApplyUserDynamicAxes(map[string][]int{"x": {0, 5}}, md)
		assert.True(t, faults.IsUserInput(err))
	})
}

func TestMaxBatchSize(t *testing.T) {
	axes := NewAxesShapes().Set("input_0", []int{5, 999, 1, 3, 7}, repeat(3, 5))
	testCases := []struct {
		name     string
		batchDim *int
		want     int
	}{
		{name: "no batch axis", batchDim: nil, want: 0},
		{name: "first axis", batchDim: intp(0), want: 999},
		{name: "second axis", batchDim: intp(1), want: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MaxBatchSize(axes, tc.batchDim)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBatchDimOutOfRange(t *testing.T) {
	axes := NewAxesShapes().Set("input_0", []int{2, 4}, []int{3, 3})
	dtypes := map[string]tensor.DType{"input_0": tensor.Float32}
	testCases := []struct {
		name     string
		batchDim *int
		call     func(batchDim *int) error
	}{
		{name: "profile past rank", batchDim: intp(2), call: func(b *int) error { _, err := DeriveProfile(axes, b); return err }},
		{name: "metadata past rank", batchDim: intp(2), call: func(b *int) error { _, err := DeriveMetadata(axes, b, dtypes); return err }},
		{name: "max batch size past rank", batchDim: intp(2), call: func(b *int) error { _, err := MaxBatchSize(axes, b); return err }},
		{name: "negative axis", batchDim: intp(-1), call: func(b *int) error { _, err := DeriveProfile(axes, b); return err }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call(tc.batchDim)

			require.Error(t, err)
			assert.True(t, faults.IsUserInput(err))
			assert.ErrorContains(t, err, fmt.Sprintf("Tensor `input_0` has rank 2, batch_dim %d is out of range.", *tc.batchDim))
		})
	}

	t.Run("scalar outputs are left alone", func(t *testing.T) {
		md, err := DeriveMetadata(NewAxesShapes().Set("loss"), intp(0), map[string]tensor.DType{"loss": tensor.Float32})
		require.NoError(t, err)
		loss, _ := md.Get("loss")
		assert.Empty(t, loss.Shape)
	})
}

func TestExtractAxesShapes(t *testing.T) {
	ctx := context.Background()

	t.Run("collects every axis of every sample", func(t *testing.T) {
		src := dataloader.FromSlice(image(1), image(2), image(4))
		axes, err := ExtractAxesShapes(ctx, src, []string{"input_0"}, []int{4}, 3, true)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{1, 2, 4}, {4, 4, 4}, {4, 4, 4}, {3, 3, 3}}, axes.Axes("input_0"))
		assert.Equal(t, tensor.Float32, axes.DTypes()["input_0"])
	})

	t.Run("fewer samples than reported is an internal fault", func(t *testing.T) {
		src := dataloader.FromSlice(image(1), image(2))
		_, err := ExtractAxesShapes(ctx, src, []string{"input_0"}, []int{4}, 3, true)
		require.Error(t, err)
		assert.True(t, faults.IsInternal(err))
		assert.ErrorContains(t, err, "only 2 samples found")
	})

	t.Run("unsized source with length check is an internal fault", func(t *testing.T) {
		src := dataloader.FromSeq(dataloader.FromSlice(image(1)).All())
		_, err := ExtractAxesShapes(ctx, src, []string{"input_0"}, []int{4}, 1, true)
		assert.True(t, faults.IsInternal(err))
	})

	t.Run("extra samples are cut with a warning", func(t *testing.T) {
		var buf bytes.Buffer
		logCtx := ctxlog.WithLogger(ctx, slog.New(slog.NewTextHandler(&buf, nil)))
		src := dataloader.FromSeq(func(yield func(tensor.Sample) bool) {
			for i := 1; ; i++ {
				if !yield(image(i)) {
					return
				}
			}
		})
		axes, err := ExtractAxesShapes(logCtx, src, []string{"input_0"}, []int{4}, 2, false)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, axes.Axes("input_0")[0])
		assert.Contains(t, buf.String(), "more samples")
	})

	t.Run("missing key is a user error", func(t *testing.T) {
		src := dataloader.FromSlice(image(1))
		_, err := ExtractAxesShapes(ctx, src, []string{"pixels"}, []int{4}, 1, true)
		assert.True(t, faults.IsUserInput(err))
	})

	t.Run("rank mismatch is a user error", func(t *testing.T) {
		src := dataloader.FromSlice(image(1))
		_, err := ExtractAxesShapes(ctx, src, []string{"input_0"}, []int{3}, 1, true)
		assert.True(t, faults.IsUserInput(err))
	})
}

func TestAssertConsistentSamples(t *testing.T) {
	assert.NoError(t, AssertConsistentSamples([]tensor.Sample{image(1), image(2)}))

	single := tensor.SingleSample(tensor.Zeros(tensor.Float32, tensor.Shape{1}))
	err := AssertConsistentSamples([]tensor.Sample{image(1), single})
	assert.True(t, faults.IsUserInput(err))
}

func TestDefaultInputNames(t *testing.T) {
	assert.Equal(t, []string{"input_0"}, DefaultInputNames(image(1)))
	pair := tensor.TupleSample(tensor.Zeros(tensor.Float32, tensor.Shape{1}), tensor.Zeros(tensor.Float32, tensor.Shape{1}))
	assert.Equal(t, []string{"input__0", "input__1"}, DefaultInputNames(pair))
}
