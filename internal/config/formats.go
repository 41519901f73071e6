package config

import (
	"slices"

	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/tensor"
)

// CustomConfig carries format-specific options. At most one config per
// format and per name may be supplied to a run.
type CustomConfig interface {
	Name() string
	Format() Format
	// Defaults resets every option to its initial value.
	Defaults()
	Validate() error
}

// TensorFlowConfig configures SavedModel export.
type TensorFlowConfig struct {
	JitCompile bool
}

func (c *TensorFlowConfig) Name() string    { return "TensorFlow" }
func (c *TensorFlowConfig) Format() Format  { return FormatTFSavedModel }
func (c *TensorFlowConfig) Defaults()       { c.JitCompile = false }
func (c *TensorFlowConfig) Validate() error { return nil }

// JitType selects how a Torch model is serialized.
type JitType string

const (
	JitScript JitType = "script"
	JitTrace  JitType = "trace"
)

// TorchConfig configures TorchScript export.
type TorchConfig struct {
	Strict  bool
	JitType []JitType
}

// NewTorchConfig returns a config with defaults applied.
func NewTorchConfig() *TorchConfig {
	c := &TorchConfig{}
	c.Defaults()
	return c
}

func (c *TorchConfig) Name() string   { return "Torch" }
func (c *TorchConfig) Format() Format { return FormatTorchScript }

func (c *TorchConfig) Defaults() {
	c.Strict = true
	c.JitType = []JitType{JitScript, JitTrace}
}

func (c *TorchConfig) Validate() error {
	for _, j := range c.JitType {
		if j != JitScript && j != JitTrace {
			return faults.Configuration("unknown jit type %q, expected script or trace", j)
		}
	}
	return nil
}

// OnnxConfig configures ONNX export and the runtimes it is verified on.
type OnnxConfig struct {
	Opset    int
	Runtimes []Runtime
}

// NewOnnxConfig returns a config with defaults applied.
func NewOnnxConfig() *OnnxConfig {
	c := &OnnxConfig{}
	c.Defaults()
	return c
}

func (c *OnnxConfig) Name() string   { return "Onnx" }
func (c *OnnxConfig) Format() Format { return FormatONNX }

func (c *OnnxConfig) Defaults() {
	c.Opset = DefaultONNXOpset
	c.Runtimes = slices.Clone(DefaultONNXRuntimes)
}

func (c *OnnxConfig) Validate() error {
	if c.Opset < 1 {
		return faults.Configuration("ONNX `opset` must be greater or equal 1. Provided value: %d.", c.Opset)
	}
	if len(c.Runtimes) == 0 {
		return faults.Configuration("ONNX `runtimes` must not be empty.")
	}
	return nil
}

// TensorRTOptions are shared by every format compiled with TensorRT.
type TensorRTOptions struct {
	Precision        []Precision
	PrecisionMode    PrecisionMode
	MaxWorkspaceSize int64
	// TRTProfile and TRTProfiles are mutually exclusive.
	TRTProfile  *tensor.Profile
	TRTProfiles []*tensor.Profile
}

func (o *TensorRTOptions) defaults() {
	o.Precision = slices.Clone(DefaultPrecisions)
	o.PrecisionMode = DefaultPrecisionMode
	o.MaxWorkspaceSize = DefaultWorkspaceBytes
	o.TRTProfile = nil
	o.TRTProfiles = nil
}

func (o *TensorRTOptions) validate() error {
	if o.TRTProfile != nil && len(o.TRTProfiles) > 0 {
		return faults.Configuration("Only one of `trt_profile` or `trt_profiles` can be defined.")
	}
	if len(o.Precision) == 0 {
		return faults.Configuration("TensorRT `precision` must not be empty.")
	}
	for _, p := range o.Precision {
		if _, err := ParsePrecision(string(p)); err != nil {
			return err
		}
	}
	if _, err := ParsePrecisionMode(string(o.PrecisionMode)); err != nil {
		return err
	}
	for _, p := range o.Profiles() {
		if err := p.Validate(); err != nil {
			return faults.Configuration("invalid TensorRT profile: %v", err)
		}
	}
	return nil
}

// Profiles returns the user profiles; a single profile becomes a list of one.
func (o *TensorRTOptions) Profiles() []*tensor.Profile {
	if o.TRTProfile != nil {
		return []*tensor.Profile{o.TRTProfile}
	}
	return o.TRTProfiles
}

// TensorRTConfig configures ONNX to TensorRT conversion.
type TensorRTConfig struct {
	TensorRTOptions
	// OptimizationLevel is the builder optimization level, 0 to 5.
	OptimizationLevel *int
}

// NewTensorRTConfig returns a config with defaults applied.
func NewTensorRTConfig() *TensorRTConfig {
	c := &TensorRTConfig{}
	c.Defaults()
	return c
}

func (c *TensorRTConfig) Name() string   { return "TensorRT" }
func (c *TensorRTConfig) Format() Format { return FormatTensorRT }

func (c *TensorRTConfig) Defaults() {
	c.defaults()
	c.OptimizationLevel = nil
}

func (c *TensorRTConfig) Validate() error {
	if c.OptimizationLevel != nil && (*c.OptimizationLevel < 0 || *c.OptimizationLevel > 5) {
		return faults.Configuration("TensorRT `optimization_level` must be between 0 and 5. Provided value: %d.", *c.OptimizationLevel)
	}
	return c.validate()
}

// TensorFlowTensorRTConfig configures TF-TRT conversion.
type TensorFlowTensorRTConfig struct {
	TensorRTOptions
	MinimumSegmentSize int
}

// NewTensorFlowTensorRTConfig returns a config with defaults applied.
func NewTensorFlowTensorRTConfig() *TensorFlowTensorRTConfig {
	c := &TensorFlowTensorRTConfig{}
	c.Defaults()
	return c
}

func (c *TensorFlowTensorRTConfig) Name() string   { return "TensorFlowTensorRT" }
func (c *TensorFlowTensorRTConfig) Format() Format { return FormatTFTRT }

func (c *TensorFlowTensorRTConfig) Defaults() {
	c.defaults()
	c.MinimumSegmentSize = 3
}

func (c *TensorFlowTensorRTConfig) Validate() error { return c.validate() }

// TorchTensorRTConfig configures Torch-TensorRT conversion.
type TorchTensorRTConfig struct {
	TensorRTOptions
}

// NewTorchTensorRTConfig returns a config with defaults applied.
func NewTorchTensorRTConfig() *TorchTensorRTConfig {
	c := &TorchTensorRTConfig{}
	c.Defaults()
	return c
}

func (c *TorchTensorRTConfig) Name() string    { return "TorchTensorRT" }
func (c *TorchTensorRTConfig) Format() Format  { return FormatTorchTRT }
func (c *TorchTensorRTConfig) Defaults()       { c.defaults() }
func (c *TorchTensorRTConfig) Validate() error { return c.validate() }

// DefaultCustomConfig returns the default config for a format.
func DefaultCustomConfig(f Format) CustomConfig {
	var c CustomConfig
	switch f {
	case FormatTFSavedModel:
		c = &TensorFlowConfig{}
	case FormatTorchScript:
		c = &TorchConfig{}
	case FormatONNX:
		c = &OnnxConfig{}
	case FormatTensorRT:
		c = &TensorRTConfig{}
	case FormatTFTRT:
		c = &TensorFlowTensorRTConfig{}
	case FormatTorchTRT:
		c = &TorchTensorRTConfig{}
	default:
		return nil
	}
	c.Defaults()
	return c
}

// MapCustomConfigs indexes configs by format, rejecting duplicate names
// and duplicate formats.
func MapCustomConfigs(configs []CustomConfig) (map[Format]CustomConfig, error) {
	out := make(map[Format]CustomConfig, len(configs))
	names := make(map[string]struct{}, len(configs))
	for _, c := range configs {
		if _, dup := names[c.Name()]; dup {
			return nil, faults.Configuration("custom config %q is defined more than once", c.Name())
		}
		if prev, dup := out[c.Format()]; dup {
			return nil, faults.Configuration("custom configs %q and %q both target format %s", prev.Name(), c.Name(), c.Format())
		}
		names[c.Name()] = struct{}{}
		out[c.Format()] = c
	}
	return out, nil
}
