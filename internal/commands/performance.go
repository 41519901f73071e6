package commands

import (
	"context"
	"math"
	"slices"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/runner"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/specialistvlad/gridnav/internal/tooling"
)

// Measurement is the steady-state performance at one batch size.
type Measurement struct {
	BatchSize  int     `yaml:"batch_size"`
	LatencyMs  float64 `yaml:"latency_ms"`
	Throughput float64 `yaml:"throughput"`
	Trials     int     `yaml:"trials"`
	Stable     bool    `yaml:"stable"`
}

// PerformanceReport lists the measurements of a variant by batch size.
type PerformanceReport struct {
	Variant      Variant       `yaml:"variant"`
	Measurements []Measurement `yaml:"measurements"`
}

// Best returns the measurement with the highest throughput.
func (r PerformanceReport) Best() (Measurement, bool) {
	if len(r.Measurements) == 0 {
		return Measurement{}, false
	}
	return slices.MaxFunc(r.Measurements, func(a, b Measurement) int {
		switch {
		case a.Throughput < b.Throughput:
			return -1
		case a.Throughput > b.Throughput:
			return 1
		}
		return 0
	}), true
}

// Performance measures latency and throughput of a variant. For every batch
// size it runs trials of WindowSize inferences until the last
// StabilizationWindows trials agree within StabilityPercentage, or
// MaxTrials is reached. Growing the batch stops once throughput improves by
// less than ThroughputCutoffThreshold.
type Performance struct {
	command.Base
	env     *Env
	variant Variant
}

func NewPerformance(env *Env, v Variant, requires ...command.Command) *Performance {
	c := &Performance{
		Base:    command.NewBase("performance_"+v.String(), false, PerformanceKey(v)),
		env:     env,
		variant: v,
	}
	c.Require(requires...)
	return c
}

func (c *Performance) Variant() Variant { return c.variant }

func (c *Performance) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := c.env.Config

	artifact, err := command.Lookup[string](ns, ArtifactKey(c.variant))
	if err != nil {
		return command.Output{}, err
	}
	sample, err := command.Lookup[tensor.Sample](ns, KeyProfilingSample)
	if err != nil {
		return command.Output{}, err
	}
	maxBatch, err := command.LookupOr(ns, KeyMaxBatchSize, 0)
	if err != nil {
		return command.Output{}, err
	}

	r, err := c.env.Toolkit.NewRunner(tooling.Params{
		Name:      "performance/" + c.variant.String(),
		Framework: cfg.Framework,
		Format:    c.variant.Format,
		Precision: c.variant.Precision,
		Runtime:   c.variant.Runtime,
		Input:     artifact,
		Workspace: c.env.workspace(),
		Custom:    cfg.Custom(c.variant.Format),
	})
	if err != nil {
		return command.Output{}, err
	}

	report := PerformanceReport{Variant: c.variant}
	err = runner.Use(ctx, r, func(r runner.Runner) error {
		var prev *Measurement
		for _, bs := range BatchSizes(cfg.Profile, cfg.BatchDim, maxBatch) {
			batch, err := batchOf(sample, cfg.BatchDim, bs)
			if err != nil {
				return err
			}
			m, err := c.measure(ctx, r, batch, bs)
			if err != nil {
				return err
			}
			logger.Info("Measured performance.", "variant", c.variant.String(), "batch_size", bs,
				"latency_ms", m.LatencyMs, "throughput", m.Throughput, "trials", m.Trials, "stable", m.Stable)
			report.Measurements = append(report.Measurements, m)

			if prev != nil && prev.Throughput > 0 &&
				(m.Throughput-prev.Throughput)/prev.Throughput < cfg.Profile.ThroughputCutoffThreshold {
				logger.Debug("Throughput saturated, not growing the batch further.", "batch_size", bs)
				return nil
			}
			prev = &m
		}
		return nil
	})
	if err != nil {
		return command.Output{}, err
	}
	return command.OK(map[string]any{PerformanceKey(c.variant): report}), nil
}

func (c *Performance) measure(ctx context.Context, r runner.Runner, batch tensor.Sample, bs int) (Measurement, error) {
	p := c.env.Config.Profile
	window := make([]tensor.Sample, p.WindowSize)
	for i := range window {
		window[i] = batch
	}

	m := Measurement{BatchSize: bs}
	var latencies []float64
	for m.Trials < p.MaxTrials {
		start := c.env.now()
		if _, err := runner.InferAll(ctx, r, window); err != nil {
			return Measurement{}, err
		}
		elapsed := c.env.now().Sub(start)
		latencies = append(latencies, float64(elapsed.Microseconds())/1000/float64(p.WindowSize))
		m.Trials++

		if m.Trials >= p.MinTrials && isStable(latencies[len(latencies)-p.StabilizationWindows:], p.StabilityPercentage) {
			m.Stable = true
			break
		}
	}

	m.LatencyMs = mean(latencies[max(0, len(latencies)-p.StabilizationWindows):])
	if m.LatencyMs > 0 {
		m.Throughput = float64(bs) * 1000 / m.LatencyMs
	}
	return m, nil
}

// BatchSizes returns the batch sizes to measure: the configured list, or
// powers of two up to the largest batch, which is always included. Without a
// batch axis the sample is measured as is.
func BatchSizes(p config.OptimizationProfile, batchDim *int, dataloaderMax int) []int {
	if batchDim == nil {
		return []int{1}
	}
	if len(p.BatchSizes) > 0 {
		out := slices.Clone(p.BatchSizes)
		slices.Sort(out)
		return slices.Compact(out)
	}
	limit := p.MaxBatchSize
	if limit <= 0 {
		limit = dataloaderMax
	}
	limit = max(limit, 1)

	var out []int
	for bs := 1; bs < limit; bs *= 2 {
		out = append(out, bs)
	}
	return append(out, limit)
}

// batchOf grows or shrinks every tensor of a sample to batch size bs.
func batchOf(sample tensor.Sample, batchDim *int, bs int) (tensor.Sample, error) {
	if batchDim == nil {
		return sample, nil
	}
	out := tensor.Sample{Kind: sample.Kind, Names: slices.Clone(sample.Names)}
	for _, t := range sample.Tensors {
		tiled, err := t.Tile(*batchDim, bs)
		if err != nil {
			return tensor.Sample{}, faults.UserInput("Unable to build a batch of %d: %v", bs, err)
		}
		out.Tensors = append(out.Tensors, tiled)
	}
	return out, nil
}

// isStable reports whether every latency lies within pct percent of the mean.
func isStable(latencies []float64, pct float64) bool {
	m := mean(latencies)
	for _, l := range latencies {
		if math.Abs(l-m) > m*pct/100 {
			return false
		}
	}
	return true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
