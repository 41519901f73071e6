package tooling

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/execctx"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/runner"
	"github.com/specialistvlad/gridnav/internal/tensor"
)

// ProcessRunner runs a model through an external runner tool. Each batch is
// one subprocess: inputs are dumped to Params.Samples, the tool writes its
// outputs to Params.Output and both are msgpack sample dumps.
type ProcessRunner struct {
	tool   *compiledTool
	exec   *execctx.Context
	params Params
	calls  int
}

var _ runner.BatchRunner = (*ProcessRunner)(nil)

func (r *ProcessRunner) Name() string {
	if r.params.Runtime != "" {
		return fmt.Sprintf("%s-%s", r.tool.tool.Name, r.params.Runtime)
	}
	return r.tool.tool.Name
}

func (r *ProcessRunner) Open(ctx context.Context) error {
	r.calls = 0
	return nil
}

func (r *ProcessRunner) Close() error { return nil }

func (r *ProcessRunner) Infer(ctx context.Context, sample tensor.Sample) (tensor.Sample, error) {
	out, err := r.InferBatch(ctx, []tensor.Sample{sample})
	if err != nil {
		return tensor.Sample{}, err
	}
	return out[0], nil
}

func (r *ProcessRunner) InferBatch(ctx context.Context, samples []tensor.Sample) ([]tensor.Sample, error) {
	r.calls++
	name := fmt.Sprintf("%s/call-%04d", r.params.Name, r.calls)
	dir := r.exec.RunDir(name)

	p := r.params
	p.Name = name
	p.Samples = filepath.Join(dir, "inputs.msgpack")
	p.Output = filepath.Join(dir, "outputs.msgpack")
	if err := dataloader.Dump(p.Samples, samples); err != nil {
		return nil, err
	}

	args, err := r.tool.render(p)
	if err != nil {
		return nil, err
	}
	if _, err := r.exec.Run(ctx, execctx.Spec{
		Name:    name,
		Args:    args,
		Env:     r.tool.tool.Env,
		Timeout: r.tool.tool.Timeout,
	}); err != nil {
		return nil, err
	}

	out, err := dataloader.Load(p.Output)
	if err != nil {
		return nil, &faults.ExecutionFault{Name: name, Err: fmt.Errorf("runner left no readable outputs: %w", err)}
	}
	if len(out) != len(samples) {
		return nil, &faults.ExecutionFault{Name: name, Err: fmt.Errorf("runner wrote %d outputs for %d samples", len(out), len(samples))}
	}
	return out, nil
}
