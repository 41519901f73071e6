package commands

import (
	"context"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/metadata"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/specialistvlad/gridnav/internal/tooling"
)

// InferInputMetadata derives the input metadata, the shape profile and the
// largest batch size from the data source.
type InferInputMetadata struct {
	command.Base
	env *Env
}

func NewInferInputMetadata(env *Env) *InferInputMetadata {
	return &InferInputMetadata{
		Base: command.NewBase("infer_input_metadata", true, KeyInputMetadata, KeyTRTProfile, KeyMaxBatchSize),
		env:  env,
	}
}

func (c *InferInputMetadata) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := c.env.Config
	src := c.env.Source
	if src == nil {
		return command.Output{}, faults.Internal("no data source attached to the run")
	}

	first, ok := dataloader.First(src)
	if !ok {
		return command.Output{}, faults.UserInput("Dataloader is empty. At least one sample is required.")
	}
	if err := dataloader.Validate(first); err != nil {
		return command.Output{}, err
	}
	names := cfg.InputNames
	if len(names) == 0 {
		names = metadata.DefaultInputNames(first)
	}
	ranks, err := ranksOf(first, names)
	if err != nil {
		return command.Output{}, err
	}

	// A sized source is read fully and must deliver what it reports.
	n, checkLen := cfg.SampleCount, false
	if size, ok := src.Len(); ok {
		n, checkLen = size, true
	}
	axes, err := metadata.ExtractAxesShapes(ctx, src, names, ranks, n, checkLen)
	if err != nil {
		return command.Output{}, err
	}

	profile, err := metadata.DeriveProfile(axes, cfg.BatchDim)
	if err != nil {
		return command.Output{}, err
	}
	md, err := metadata.DeriveMetadata(axes, cfg.BatchDim, axes.DTypes())
	if err != nil {
		return command.Output{}, err
	}
	md, err = metadata.ApplyUserDynamicAxes(cfg.DynamicAxes, md)
	if err != nil {
		return command.Output{}, err
	}
	maxBatch, err := metadata.MaxBatchSize(axes, cfg.BatchDim)
	if err != nil {
		return command.Output{}, err
	}

	logger.Info("Inferred input metadata.", "inputs", md.String(), "max_batch_size", maxBatch)
	return command.OK(map[string]any{
		KeyInputMetadata: md,
		KeyTRTProfile:    profile,
		KeyMaxBatchSize:  maxBatch,
	}), nil
}

// InferOutputMetadata runs the source model on the correctness samples and
// derives the output metadata from what it returns. The outputs double as
// the reference every variant is compared against.
type InferOutputMetadata struct {
	command.Base
	env *Env
}

func NewInferOutputMetadata(env *Env, requires ...command.Command) *InferOutputMetadata {
	c := &InferOutputMetadata{
		Base: command.NewBase("infer_output_metadata", true, KeyOutputMetadata, KeyReferenceOutputs),
		env:  env,
	}
	c.Require(requires...)
	return c
}

func (c *InferOutputMetadata) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := c.env.Config
	samples, err := command.Lookup[[]tensor.Sample](ns, KeyCorrectnessSamples)
	if err != nil {
		return command.Output{}, err
	}

	base := config.BaseFormat(cfg.Framework)
	outputs, err := inferWith(ctx, c.env, tooling.Params{
		Name:      c.Name() + "/" + string(base),
		Framework: cfg.Framework,
		Format:    base,
		Input:     cfg.ModelPath,
		Workspace: c.env.workspace(),
		Custom:    cfg.Custom(base),
	}, samples)
	if err != nil {
		return command.Output{}, err
	}
	if len(outputs) == 0 {
		return command.Output{}, faults.Internal("no correctness samples to infer output metadata from")
	}

	names := cfg.OutputNames
	if len(names) == 0 {
		names = dataloader.DefaultNames(outputs[0])
	}
	ranks, err := ranksOf(outputs[0], names)
	if err != nil {
		return command.Output{}, err
	}
	axes, err := metadata.ExtractAxesShapes(ctx, dataloader.FromSlice(outputs...), names, ranks, len(outputs), true)
	if err != nil {
		return command.Output{}, err
	}
	md, err := metadata.DeriveMetadata(axes, cfg.BatchDim, axes.DTypes())
	if err != nil {
		return command.Output{}, err
	}
	md, err = metadata.ApplyUserDynamicAxes(cfg.DynamicAxes, md)
	if err != nil {
		return command.Output{}, err
	}

	reference := make([]tensor.Sample, len(outputs))
	for i, out := range outputs {
		if reference[i], err = dataloader.Extract(out, names); err != nil {
			return command.Output{}, err
		}
	}

	logger.Info("Inferred output metadata.", "outputs", md.String())
	return command.OK(map[string]any{
		KeyOutputMetadata:   md,
		KeyReferenceOutputs: reference,
	}), nil
}

// ranksOf returns the rank of each named tensor of a sample.
func ranksOf(sample tensor.Sample, names []string) ([]int, error) {
	extracted, err := dataloader.Extract(sample, names)
	if err != nil {
		return nil, err
	}
	ranks := make([]int, len(names))
	for i, name := range names {
		t, _ := extracted.Lookup(name)
		ranks[i] = t.NDim()
	}
	return ranks, nil
}
