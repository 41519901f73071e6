package config

import (
	"slices"

	"github.com/specialistvlad/gridnav/internal/faults"
)

// Framework is the source framework of a model.
type Framework string

const (
	TensorFlow Framework = "tensorflow"
	Torch      Framework = "torch"
	ONNX       Framework = "onnx"
)

// Frameworks lists every supported framework.
var Frameworks = []Framework{TensorFlow, Torch, ONNX}

// Format is a serialized model format.
type Format string

const (
	FormatTFSavedModel Format = "tf-savedmodel"
	FormatTFTRT        Format = "tf-trt"
	FormatTorchScript  Format = "torchscript"
	FormatTorchTRT     Format = "torch-trt"
	FormatONNX         Format = "onnx"
	FormatTensorRT     Format = "tensorrt"
)

// Precision is a compiled-format numeric precision.
type Precision string

const (
	FP32 Precision = "fp32"
	FP16 Precision = "fp16"
)

// PrecisionMode tells the compiled-format builder how to mix precisions.
type PrecisionMode string

const (
	PrecisionModeHierarchy PrecisionMode = "hierarchy"
	PrecisionModeMixed     PrecisionMode = "mixed"
)

// Runtime is an execution provider for ONNX models.
type Runtime string

const (
	RuntimeCPU      Runtime = "cpu"
	RuntimeCUDA     Runtime = "cuda"
	RuntimeTensorRT Runtime = "tensorrt"
)

var (
	DefaultPrecisions     = []Precision{FP32, FP16}
	DefaultPrecisionMode  = PrecisionModeHierarchy
	DefaultONNXRuntimes   = []Runtime{RuntimeCPU, RuntimeCUDA, RuntimeTensorRT}
	DefaultONNXOpset      = 17
	DefaultWorkspaceBytes = int64(8) << 30
)

var baseFormats = map[Framework]Format{
	TensorFlow: FormatTFSavedModel,
	Torch:      FormatTorchScript,
	ONNX:       FormatONNX,
}

var targetFormats = map[Framework][]Format{
	TensorFlow: {FormatTFSavedModel, FormatTFTRT, FormatONNX, FormatTensorRT},
	Torch:      {FormatTorchScript, FormatTorchTRT, FormatONNX, FormatTensorRT},
	ONNX:       {FormatONNX, FormatTensorRT},
}

// BaseFormat returns the format a framework's model is exported to first.
func BaseFormat(f Framework) Format {
	return baseFormats[f]
}

// TargetFormats returns the formats reachable from a framework, base first.
func TargetFormats(f Framework) []Format {
	return slices.Clone(targetFormats[f])
}

// ParseFramework validates a framework tag.
func ParseFramework(s string) (Framework, error) {
	f := Framework(s)
	if !slices.Contains(Frameworks, f) {
		return "", faults.Configuration("unknown framework %q, expected one of %v", s, Frameworks)
	}
	return f, nil
}

// ParseFormat validates a format tag.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTFSavedModel, FormatTFTRT, FormatTorchScript, FormatTorchTRT, FormatONNX, FormatTensorRT:
		return f, nil
	}
	return "", faults.Configuration("unknown format %q", s)
}

// ParsePrecision validates a precision tag.
func ParsePrecision(s string) (Precision, error) {
	switch p := Precision(s); p {
	case FP32, FP16:
		return p, nil
	}
	return "", faults.Configuration("unknown precision %q, expected fp32 or fp16", s)
}

// ParsePrecisionMode validates a precision mode tag.
func ParsePrecisionMode(s string) (PrecisionMode, error) {
	switch m := PrecisionMode(s); m {
	case PrecisionModeHierarchy, PrecisionModeMixed:
		return m, nil
	}
	return "", faults.Configuration("unknown precision mode %q, expected hierarchy or mixed", s)
}

// ParseRuntime validates an ONNX runtime tag.
func ParseRuntime(s string) (Runtime, error) {
	switch r := Runtime(s); r {
	case RuntimeCPU, RuntimeCUDA, RuntimeTensorRT:
		return r, nil
	}
	return "", faults.Configuration("unknown onnx runtime %q, expected cpu, cuda or tensorrt", s)
}
