package commands

import (
	"context"
	"path/filepath"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/metadata"
	"github.com/specialistvlad/gridnav/internal/tensor"
)

// Dump locations relative to the workspace.
const (
	InputDataDir  = "model_input"
	OutputDataDir = "model_output"
)

const (
	profilingDump   = "profiling.msgpack"
	correctnessDump = "correctness.msgpack"
	conversionDump  = "conversion.msgpack"
)

// FetchInputModelData takes the first samples of the data source, restricted
// to the inferred inputs, and shares them with later commands.
type FetchInputModelData struct {
	command.Base
	env *Env
}

func NewFetchInputModelData(env *Env, requires ...command.Command) *FetchInputModelData {
	c := &FetchInputModelData{
		Base: command.NewBase("fetch_input_model_data", true, KeyProfilingSample, KeyCorrectnessSamples, KeyConversionSamples),
		env:  env,
	}
	c.Require(requires...)
	return c
}

func (c *FetchInputModelData) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	md, err := command.Lookup[*tensor.Metadata](ns, KeyInputMetadata)
	if err != nil {
		return command.Output{}, err
	}
	if c.env.Source == nil {
		return command.Output{}, faults.Internal("no data source attached to the run")
	}

	samples := dataloader.Take(c.env.Source, c.env.Config.SampleCount)
	if len(samples) == 0 {
		return command.Output{}, faults.UserInput("Dataloader is empty. At least one sample is required.")
	}
	if err := metadata.AssertConsistentSamples(samples); err != nil {
		return command.Output{}, err
	}

	names := md.Names()
	extracted := make([]tensor.Sample, len(samples))
	for i, s := range samples {
		if extracted[i], err = dataloader.Extract(s, names); err != nil {
			return command.Output{}, err
		}
	}

	ctxlog.FromContext(ctx).Debug("Fetched model input samples.", "count", len(extracted))
	return command.OK(map[string]any{
		KeyProfilingSample:    extracted[0],
		KeyCorrectnessSamples: extracted,
		KeyConversionSamples:  extracted,
	}), nil
}

// DumpInputModelData writes the fetched samples to the workspace so external
// tools and later runs can read them.
type DumpInputModelData struct {
	command.Base
	env *Env
}

func NewDumpInputModelData(env *Env, requires ...command.Command) *DumpInputModelData {
	c := &DumpInputModelData{
		Base: command.NewBase("dump_input_model_data", false, KeyInputDataPath),
		env:  env,
	}
	c.Require(requires...)
	return c
}

func (c *DumpInputModelData) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	profiling, err := command.Lookup[tensor.Sample](ns, KeyProfilingSample)
	if err != nil {
		return command.Output{}, err
	}
	correctness, err := command.Lookup[[]tensor.Sample](ns, KeyCorrectnessSamples)
	if err != nil {
		return command.Output{}, err
	}
	conversion, err := command.Lookup[[]tensor.Sample](ns, KeyConversionSamples)
	if err != nil {
		return command.Output{}, err
	}

	dir := filepath.Join(c.env.workspace(), InputDataDir)
	dumps := []struct {
		file    string
		samples []tensor.Sample
	}{
		{profilingDump, []tensor.Sample{profiling}},
		{correctnessDump, correctness},
		{conversionDump, conversion},
	}
	for _, d := range dumps {
		if err := dataloader.Dump(filepath.Join(dir, d.file), d.samples); err != nil {
			return command.Output{}, err
		}
	}
	return command.OK(map[string]any{KeyInputDataPath: dir}), nil
}

// DumpOutputModelData writes the reference outputs to the workspace.
type DumpOutputModelData struct {
	command.Base
	env *Env
}

func NewDumpOutputModelData(env *Env, requires ...command.Command) *DumpOutputModelData {
	c := &DumpOutputModelData{
		Base: command.NewBase("dump_output_model_data", false, KeyReferenceOutputsPath),
		env:  env,
	}
	c.Require(requires...)
	return c
}

func (c *DumpOutputModelData) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	reference, err := command.Lookup[[]tensor.Sample](ns, KeyReferenceOutputs)
	if err != nil {
		return command.Output{}, err
	}
	path := filepath.Join(c.env.workspace(), OutputDataDir, correctnessDump)
	if err := dataloader.Dump(path, reference); err != nil {
		return command.Output{}, err
	}
	return command.OK(map[string]any{KeyReferenceOutputsPath: path}), nil
}

// LoadSamples reads the dumps of a previous run back into the namespace.
type LoadSamples struct {
	command.Base
	env *Env
}

func NewLoadSamples(env *Env, requires ...command.Command) *LoadSamples {
	c := &LoadSamples{
		Base: command.NewBase("load_samples", true,
			KeyProfilingSample, KeyCorrectnessSamples, KeyConversionSamples, KeyReferenceOutputs, KeyInputDataPath),
		env: env,
	}
	c.Require(requires...)
	return c
}

func (c *LoadSamples) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	inputDir := filepath.Join(c.env.workspace(), InputDataDir)
	load := func(path string) ([]tensor.Sample, error) {
		samples, err := dataloader.Load(path)
		if err != nil {
			return nil, faults.UserInput("Unable to load samples from the workspace: %v. Run the optimization from source first.", err)
		}
		if len(samples) == 0 {
			return nil, faults.UserInput("Samples dump %s is empty.", path)
		}
		return samples, nil
	}

	profiling, err := load(filepath.Join(inputDir, profilingDump))
	if err != nil {
		return command.Output{}, err
	}
	correctness, err := load(filepath.Join(inputDir, correctnessDump))
	if err != nil {
		return command.Output{}, err
	}
	conversion, err := load(filepath.Join(inputDir, conversionDump))
	if err != nil {
		return command.Output{}, err
	}
	reference, err := load(filepath.Join(c.env.workspace(), OutputDataDir, correctnessDump))
	if err != nil {
		return command.Output{}, err
	}
	if len(reference) != len(correctness) {
		return command.Output{}, faults.UserInput("Workspace holds %d correctness samples but %d reference outputs.", len(correctness), len(reference))
	}

	return command.OK(map[string]any{
		KeyProfilingSample:    profiling[0],
		KeyCorrectnessSamples: correctness,
		KeyConversionSamples:  conversion,
		KeyReferenceOutputs:   reference,
		KeyInputDataPath:      inputDir,
	}), nil
}
