package config

import (
	"slices"
	"time"

	"github.com/specialistvlad/gridnav/internal/faults"
)

const (
	DefaultSampleCount = 100
	DefaultAtol        = 1e-5
	DefaultRtol        = 1e-5
)

// OptimizeConfig is the unified, format-agnostic description of one
// optimization run.
type OptimizeConfig struct {
	Framework Framework
	// ModelPath points at the source model file or directory.
	ModelPath string
	// DataPath points at a msgpack sample dump used as the data source.
	DataPath  string
	Workspace string

	// TargetFormats defaults to every format reachable from Framework.
	TargetFormats []Format
	CustomConfigs []CustomConfig

	InputNames  []string
	OutputNames []string
	// BatchDim is the batch axis of every tensor, nil if there is none.
	BatchDim    *int
	DynamicAxes map[string][]int
	SampleCount int

	// FromSource runs metadata inference and export. When false, metadata
	// and samples are loaded from a previous run in Workspace.
	FromSource bool
	// Inplace lets conversions reuse artifacts already in the workspace.
	Inplace bool
	Verbose bool

	Atol    float64
	Rtol    float64
	Timeout time.Duration

	Profile OptimizationProfile
	Tools   []*Tool
}

// ToolKind is the role an external tool plays.
type ToolKind string

const (
	ToolExport  ToolKind = "export"
	ToolConvert ToolKind = "convert"
	ToolRunner  ToolKind = "runner"
)

// Tool declares an external program and the argv template used to call it.
type Tool struct {
	Name   string
	Kind   ToolKind
	Format Format
	// Command is rendered with text/template for every call.
	Command []string
	Env     map[string]string
	Timeout time.Duration
}

// Default returns a config with every default applied.
func Default() *OptimizeConfig {
	batch := 0
	return &OptimizeConfig{
		Framework:   ONNX,
		Workspace:   "navigator_workspace",
		BatchDim:    &batch,
		SampleCount: DefaultSampleCount,
		FromSource:  true,
		Atol:        DefaultAtol,
		Rtol:        DefaultRtol,
		Profile:     DefaultOptimizationProfile(),
	}
}

// Targets returns the requested formats, or every reachable format.
func (c *OptimizeConfig) Targets() []Format {
	if len(c.TargetFormats) == 0 {
		return TargetFormats(c.Framework)
	}
	return slices.Clone(c.TargetFormats)
}

// Wants reports whether f is a requested target.
func (c *OptimizeConfig) Wants(f Format) bool {
	return slices.Contains(c.Targets(), f)
}

// Custom returns the custom config for a format, or its default.
func (c *OptimizeConfig) Custom(f Format) CustomConfig {
	for _, cc := range c.CustomConfigs {
		if cc.Format() == f {
			return cc
		}
	}
	return DefaultCustomConfig(f)
}

// TensorRT returns the TensorRT config.
func (c *OptimizeConfig) TensorRT() *TensorRTConfig {
	return c.Custom(FormatTensorRT).(*TensorRTConfig)
}

// Onnx returns the ONNX config.
func (c *OptimizeConfig) Onnx() *OnnxConfig {
	return c.Custom(FormatONNX).(*OnnxConfig)
}

// TensorRTOptionsFor returns the TensorRT options of a TensorRT-compiled
// format, or nil for other formats.
func (c *OptimizeConfig) TensorRTOptionsFor(f Format) *TensorRTOptions {
	switch cc := c.Custom(f).(type) {
	case *TensorRTConfig:
		return &cc.TensorRTOptions
	case *TensorFlowTensorRTConfig:
		return &cc.TensorRTOptions
	case *TorchTensorRTConfig:
		return &cc.TensorRTOptions
	}
	return nil
}

// ToolsFor returns declared tools of a kind for a format.
func (c *OptimizeConfig) ToolsFor(kind ToolKind, f Format) []*Tool {
	var out []*Tool
	for _, t := range c.Tools {
		if t.Kind == kind && t.Format == f {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks every constraint. It runs before any pipeline is built.
func (c *OptimizeConfig) Validate() error {
	if _, err := ParseFramework(string(c.Framework)); err != nil {
		return err
	}
	if c.ModelPath == "" {
		return faults.Configuration("`model` path must be set.")
	}
	if c.Workspace == "" {
		return faults.Configuration("`workspace` must be set.")
	}
	if c.FromSource && c.DataPath == "" {
		return faults.Configuration("`data` path must be set when optimizing from source.")
	}
	if c.SampleCount < 1 {
		return faults.Configuration("`sample_count` must be greater or equal 1. Provided value: %d.", c.SampleCount)
	}
	if c.Atol < 0 || c.Rtol < 0 {
		return faults.Configuration("`atol` and `rtol` must be greater or equal 0.")
	}
	if c.BatchDim != nil && *c.BatchDim < 0 {
		return faults.Configuration("`batch_dim` must be greater or equal 0. Provided value: %d.", *c.BatchDim)
	}

	reachable := TargetFormats(c.Framework)
	for _, f := range c.TargetFormats {
		if _, err := ParseFormat(string(f)); err != nil {
			return err
		}
		if !slices.Contains(reachable, f) {
			return faults.Configuration("format %s cannot be produced from a %s model, expected one of %v", f, c.Framework, reachable)
		}
	}

	if _, err := MapCustomConfigs(c.CustomConfigs); err != nil {
		return err
	}
	for _, cc := range c.CustomConfigs {
		if err := cc.Validate(); err != nil {
			return err
		}
	}
	if err := c.Profile.Validate(); err != nil {
		return err
	}

	names := make(map[string]struct{}, len(c.Tools))
	for _, t := range c.Tools {
		if _, dup := names[t.Name]; dup {
			return faults.Configuration("tool %q is defined more than once", t.Name)
		}
		names[t.Name] = struct{}{}
		switch t.Kind {
		case ToolExport, ToolConvert, ToolRunner:
		default:
			return faults.Configuration("tool %q has unknown kind %q, expected export, convert or runner", t.Name, t.Kind)
		}
		if _, err := ParseFormat(string(t.Format)); err != nil {
			return faults.Configuration("tool %q: %v", t.Name, err)
		}
		if len(t.Command) == 0 {
			return faults.Configuration("tool %q has an empty command", t.Name)
		}
	}
	return nil
}
