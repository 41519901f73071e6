package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a file may contain.
type fileRoot struct {
	Optimize []*Optimize `hcl:"optimize,block"`
	Tools    []*Tool     `hcl:"tool,block"`
	Remain   hcl.Body    `hcl:",remain"`
}

// Optimize is the `optimize` block describing one run.
type Optimize struct {
	Framework     string           `hcl:"framework"`
	Model         string           `hcl:"model"`
	Data          string           `hcl:"data,optional"`
	Workspace     string           `hcl:"workspace,optional"`
	TargetFormats []string         `hcl:"target_formats,optional"`
	InputNames    []string         `hcl:"input_names,optional"`
	OutputNames   []string         `hcl:"output_names,optional"`
	BatchDim      hcl.Expression   `hcl:"batch_dim,optional"`
	DynamicAxes   map[string][]int `hcl:"dynamic_axes,optional"`
	SampleCount   *int             `hcl:"sample_count,optional"`
	FromSource    *bool            `hcl:"from_source,optional"`
	Inplace       bool             `hcl:"inplace,optional"`
	Verbose       bool             `hcl:"verbose,optional"`
	Atol          *float64         `hcl:"atol,optional"`
	Rtol          *float64         `hcl:"rtol,optional"`
	Timeout       string           `hcl:"timeout,optional"`

	Profile    *Profile    `hcl:"profile,block"`
	TensorFlow *TensorFlow `hcl:"tensorflow,block"`
	Torch      *Torch      `hcl:"torch,block"`
	Onnx       *Onnx       `hcl:"onnx,block"`
	TensorRT   *TensorRT   `hcl:"tensorrt,block"`
	TFTRT      *TensorRT   `hcl:"tf_trt,block"`
	TorchTRT   *TensorRT   `hcl:"torch_trt,block"`
}

// Profile is the `profile` block controlling performance measurement.
type Profile struct {
	MaxBatchSize              *int     `hcl:"max_batch_size,optional"`
	BatchSizes                []int    `hcl:"batch_sizes,optional"`
	WindowSize                *int     `hcl:"window_size,optional"`
	StabilityPercentage       *float64 `hcl:"stability_percentage,optional"`
	StabilizationWindows      *int     `hcl:"stabilization_windows,optional"`
	MinTrials                 *int     `hcl:"min_trials,optional"`
	MaxTrials                 *int     `hcl:"max_trials,optional"`
	ThroughputCutoffThreshold *float64 `hcl:"throughput_cutoff_threshold,optional"`
}

type TensorFlow struct {
	JitCompile bool `hcl:"jit_compile,optional"`
}

type Torch struct {
	Strict  *bool    `hcl:"strict,optional"`
	JitType []string `hcl:"jit_type,optional"`
}

type Onnx struct {
	Opset    *int     `hcl:"opset,optional"`
	Runtimes []string `hcl:"runtimes,optional"`
}

// TensorRT holds the options of every TensorRT-compiled format. The
// `tensorrt`, `tf_trt` and `torch_trt` blocks share it.
type TensorRT struct {
	Precision          []string        `hcl:"precision,optional"`
	PrecisionMode      string          `hcl:"precision_mode,optional"`
	MaxWorkspaceSize   *int64          `hcl:"max_workspace_size,optional"`
	OptimizationLevel  *int            `hcl:"optimization_level,optional"`
	MinimumSegmentSize *int            `hcl:"minimum_segment_size,optional"`
	TRTProfile         *ShapeProfile   `hcl:"trt_profile,block"`
	TRTProfiles        []*ShapeProfile `hcl:"trt_profiles,block"`
}

// ShapeProfile lists one min/opt/max range per input.
type ShapeProfile struct {
	Inputs []*ShapeRange `hcl:"input,block"`
}

type ShapeRange struct {
	Name string `hcl:"name,label"`
	Min  []int  `hcl:"min"`
	Opt  []int  `hcl:"opt"`
	Max  []int  `hcl:"max"`
}

// Tool is a `tool` block declaring an external program.
type Tool struct {
	Name    string            `hcl:"name,label"`
	Kind    string            `hcl:"kind"`
	Format  string            `hcl:"format"`
	Command []string          `hcl:"command"`
	Env     map[string]string `hcl:"env,optional"`
	Timeout string            `hcl:"timeout,optional"`
}
