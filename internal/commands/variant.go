package commands

import (
	"path/filepath"
	"strings"

	"github.com/specialistvlad/gridnav/internal/config"
)

// Variant identifies one optimized model: a format, the precision it was
// built with and the runtime it is executed on. Precision and Runtime are
// empty when they do not apply.
type Variant struct {
	Format    config.Format    `yaml:"format"`
	Precision config.Precision `yaml:"precision,omitempty"`
	Runtime   config.Runtime   `yaml:"runtime,omitempty"`
}

// String joins the set parts with dashes, e.g. "tensorrt-fp16" or "onnx-cuda".
func (v Variant) String() string {
	parts := []string{string(v.Format)}
	if v.Precision != "" {
		parts = append(parts, string(v.Precision))
	}
	if v.Runtime != "" {
		parts = append(parts, string(v.Runtime))
	}
	return strings.Join(parts, "-")
}

// Artifact drops the runtime: every runtime executes the same file.
func (v Variant) Artifact() Variant {
	return Variant{Format: v.Format, Precision: v.Precision}
}

// ArtifactKey is the namespace key holding the artifact path of v.
func ArtifactKey(v Variant) string {
	key := "artifact." + string(v.Format)
	if v.Precision != "" {
		key += "." + string(v.Precision)
	}
	return key
}

func CorrectnessKey(v Variant) string { return "correctness." + v.String() }
func PerformanceKey(v Variant) string { return "performance." + v.String() }
func ConfigKey(v Variant) string      { return "config." + v.Artifact().String() }

var artifactNames = map[config.Format]string{
	config.FormatTFSavedModel: "model.savedmodel",
	config.FormatTFTRT:        "model.savedmodel",
	config.FormatTorchScript:  "model.pt",
	config.FormatTorchTRT:     "model.pt",
	config.FormatONNX:         "model.onnx",
	config.FormatTensorRT:     "model.plan",
}

// ArtifactDir is the workspace directory of a variant's artifact.
func ArtifactDir(workspace string, v Variant) string {
	return filepath.Join(workspace, v.Artifact().String())
}

// ArtifactPath is where the artifact of v lives in the workspace.
func ArtifactPath(workspace string, v Variant) string {
	return filepath.Join(ArtifactDir(workspace, v), artifactNames[v.Format])
}
