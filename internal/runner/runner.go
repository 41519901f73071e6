// Package runner defines how commands execute a model variant: a scoped
// resource that is opened once, fed samples and closed on every exit path.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/gridnav/internal/tensor"
)

// Runner executes one model variant.
type Runner interface {
	// Name identifies the runtime, e.g. "onnx-cuda".
	Name() string
	// Open acquires whatever the runtime needs.
	Open(ctx context.Context) error
	// Close releases it. It is called once per successful Open.
	Close() error
	// Infer runs one sample and returns outputs keyed by tensor name.
	Infer(ctx context.Context, sample tensor.Sample) (tensor.Sample, error)
}

// BatchRunner is implemented by runners that can process many samples in one
// call more cheaply than one at a time.
type BatchRunner interface {
	Runner
	InferBatch(ctx context.Context, samples []tensor.Sample) ([]tensor.Sample, error)
}

// Use opens r, calls fn and closes r regardless of how fn returns.
func Use(ctx context.Context, r Runner, fn func(Runner) error) (err error) {
	if err := r.Open(ctx); err != nil {
		return fmt.Errorf("failed to open runner %s: %w", r.Name(), err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close runner %s: %w", r.Name(), cerr))
		}
	}()
	return fn(r)
}

// InferAll runs every sample through an open runner, in one batch when the
// runner supports it.
func InferAll(ctx context.Context, r Runner, samples []tensor.Sample) ([]tensor.Sample, error) {
	if br, ok := r.(BatchRunner); ok {
		out, err := br.InferBatch(ctx, samples)
		if err != nil {
			return nil, err
		}
		if len(out) != len(samples) {
			return nil, fmt.Errorf("runner %s returned %d outputs for %d samples", r.Name(), len(out), len(samples))
		}
		return out, nil
	}
	out := make([]tensor.Sample, 0, len(samples))
	for i, s := range samples {
		res, err := r.Infer(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("runner %s failed on sample %d: %w", r.Name(), i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// Func adapts a function into a Runner with no-op Open and Close.
type Func struct {
	RunnerName string
	Fn         func(ctx context.Context, sample tensor.Sample) (tensor.Sample, error)
}

func (f *Func) Name() string               { return f.RunnerName }
func (f *Func) Open(context.Context) error { return nil }
func (f *Func) Close() error               { return nil }
func (f *Func) Infer(ctx context.Context, s tensor.Sample) (tensor.Sample, error) {
	return f.Fn(ctx, s)
}
