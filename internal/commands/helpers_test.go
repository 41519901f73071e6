package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/execctx"
	"github.com/specialistvlad/gridnav/internal/runner"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/specialistvlad/gridnav/internal/tooling"
	"github.com/stretchr/testify/require"
)

// fakeToolkit renders export and convert calls from declared tools and hands
// out in-process runners.
type fakeToolkit struct {
	*tooling.Templates
	newRunner func(p tooling.Params) (runner.Runner, error)

	mu     sync.Mutex
	params []tooling.Params
}

func (f *fakeToolkit) NewRunner(p tooling.Params) (runner.Runner, error) {
	f.mu.Lock()
	f.params = append(f.params, p)
	f.mu.Unlock()
	if f.newRunner == nil {
		return nil, tooling.ErrNoTool
	}
	return f.newRunner(p)
}

// fakeClock only moves when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(t *testing.T, cfg *config.OptimizeConfig, tools []*config.Tool) (*Env, *fakeToolkit) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
		cfg.ModelPath = "model.onnx"
		cfg.DataPath = "data.msgpack"
	}
	ec := execctx.New(t.TempDir())
	tpl, err := tooling.NewTemplates(tools, ec)
	require.NoError(t, err)
	tk := &fakeToolkit{Templates: tpl}
	return &Env{Config: cfg, Toolkit: tk, Exec: ec}, tk
}

// batch builds a mapping sample with one tensor "x" of shape (n, 3).
func batch(n int, start float64) tensor.Sample {
	data := make([]float64, n*3)
	for i := range data {
		data[i] = start + float64(i)
	}
	x, _ := tensor.New(tensor.Float32, tensor.Shape{n, 3}, data)
	return tensor.MapSample(tensor.NamedTensor{Name: "x", Tensor: x})
}

// doubler returns a runner mapping "x" to "y" = 2x.
func doubler(name string) *runner.Func {
	return &runner.Func{RunnerName: name, Fn: func(_ context.Context, s tensor.Sample) (tensor.Sample, error) {
		x, _ := s.Lookup("x")
		data := make([]float64, len(x.Data))
		for i, v := range x.Data {
			data[i] = 2 * v
		}
		y, err := tensor.New(x.DType, x.Shape, data)
		if err != nil {
			return tensor.Sample{}, err
		}
		return tensor.MapSample(tensor.NamedTensor{Name: "y", Tensor: y}), nil
	}}
}

func sourceOf(samples ...tensor.Sample) dataloader.Source {
	return dataloader.FromSlice(samples...)
}
