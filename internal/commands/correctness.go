package commands

import (
	"context"
	"fmt"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/runner"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/specialistvlad/gridnav/internal/tooling"
)

// CorrectnessReport is the verdict of a correctness check.
type CorrectnessReport struct {
	Variant Variant       `yaml:"variant"`
	Passed  bool          `yaml:"passed"`
	Diffs   []runner.Diff `yaml:"diffs"`
}

// Correctness runs a variant on the correctness samples and compares its
// outputs with the reference outputs of the source model. Outputs outside
// tolerance make the command FAIL with the report attached.
type Correctness struct {
	command.Base
	env     *Env
	variant Variant
}

func NewCorrectness(env *Env, v Variant, requires ...command.Command) *Correctness {
	c := &Correctness{
		Base:    command.NewBase("correctness_"+v.String(), false, CorrectnessKey(v)),
		env:     env,
		variant: v,
	}
	c.Require(requires...)
	return c
}

func (c *Correctness) Variant() Variant { return c.variant }

func (c *Correctness) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := c.env.Config

	artifact, err := command.Lookup[string](ns, ArtifactKey(c.variant))
	if err != nil {
		return command.Output{}, err
	}
	samples, err := command.Lookup[[]tensor.Sample](ns, KeyCorrectnessSamples)
	if err != nil {
		return command.Output{}, err
	}
	reference, err := command.Lookup[[]tensor.Sample](ns, KeyReferenceOutputs)
	if err != nil {
		return command.Output{}, err
	}
	if len(samples) != len(reference) {
		return command.Output{}, faults.Internal("%d correctness samples but %d reference outputs", len(samples), len(reference))
	}

	outputs, err := inferWith(ctx, c.env, tooling.Params{
		Name:      "correctness/" + c.variant.String(),
		Framework: cfg.Framework,
		Format:    c.variant.Format,
		Precision: c.variant.Precision,
		Runtime:   c.variant.Runtime,
		Input:     artifact,
		Workspace: c.env.workspace(),
		Custom:    cfg.Custom(c.variant.Format),
	}, samples)
	if err != nil {
		return command.Output{}, err
	}

	report := CorrectnessReport{Variant: c.variant, Passed: true}
	tol := runner.Tolerance{Atol: cfg.Atol, Rtol: cfg.Rtol}
	worst := map[string]int{}
	for i, want := range reference {
		got, err := dataloader.Extract(outputs[i], want.Names)
		if err != nil {
			return command.Output{}, fmt.Errorf("sample %d: %w", i, err)
		}
		diffs, err := runner.Compare(got, want, tol)
		if err != nil {
			return command.Output{}, fmt.Errorf("sample %d: %w", i, err)
		}
		for _, d := range diffs {
			j, seen := worst[d.Tensor]
			if !seen {
				worst[d.Tensor] = len(report.Diffs)
				report.Diffs = append(report.Diffs, d)
				continue
			}
			acc := &report.Diffs[j]
			acc.MaxAbsErr = max(acc.MaxAbsErr, d.MaxAbsErr)
			acc.MaxRelErr = max(acc.MaxRelErr, d.MaxRelErr)
			acc.Within = acc.Within && d.Within
		}
	}
	for _, d := range report.Diffs {
		report.Passed = report.Passed && d.Within
	}

	values := map[string]any{CorrectnessKey(c.variant): report}
	if !report.Passed {
		logger.Warn("Outputs exceed tolerance.", "variant", c.variant.String(), "atol", cfg.Atol, "rtol", cfg.Rtol, "diffs", report.Diffs)
		return command.Fail(values), nil
	}
	return command.OK(values), nil
}

// inferWith runs samples through a toolkit runner as one scoped use.
func inferWith(ctx context.Context, env *Env, p tooling.Params, samples []tensor.Sample) ([]tensor.Sample, error) {
	r, err := env.Toolkit.NewRunner(p)
	if err != nil {
		return nil, err
	}
	var outputs []tensor.Sample
	err = runner.Use(ctx, r, func(r runner.Runner) error {
		var err error
		outputs, err = runner.InferAll(ctx, r, samples)
		return err
	})
	return outputs, err
}
