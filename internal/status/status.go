// Package status persists the outcome of an optimize run to status.yaml in
// the workspace. A later run started with from_source disabled reads it back
// instead of inferring metadata again.
package status

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blang/semver/v4"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/pipeline"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"gopkg.in/yaml.v3"
)

// FileName is the status file name inside the workspace.
const FileName = "status.yaml"

// FormatVersion is the version written by this build. Files with another
// major version, or a newer minor version, are rejected on load.
var FormatVersion = semver.MustParse("1.1.0")

// Status is the persisted snapshot of a run.
type Status struct {
	FormatVersion string           `yaml:"format_version"`
	RunID         string           `yaml:"run_id"`
	Timestamp     time.Time        `yaml:"timestamp"`
	Framework     config.Framework `yaml:"framework"`
	ModelPath     string           `yaml:"model_path"`
	// BaseArtifact is the exported model, relative to the workspace.
	BaseArtifact   string             `yaml:"base_artifact,omitempty"`
	InputMetadata  *tensor.Metadata   `yaml:"input_metadata"`
	OutputMetadata *tensor.Metadata   `yaml:"output_metadata"`
	TRTProfile     *tensor.Profile    `yaml:"trt_profile,omitempty"`
	MaxBatchSize   int                `yaml:"max_batch_size"`
	Pipelines      []pipeline.Results `yaml:"pipelines"`
	Best           string             `yaml:"best,omitempty"`
}

// Path returns the status file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, FileName)
}

// Save writes st to the workspace, stamping the current format version.
func Save(workspace string, st *Status) error {
	st.FormatVersion = FormatVersion.String()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := os.WriteFile(Path(workspace), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}

// Load reads the status of a previous run. A missing file or an unsupported
// format version is a user input error: the workspace cannot be reused.
func Load(workspace string) (*Status, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, faults.UserInput("No %s found in workspace %s. Run the optimization from source first.", FileName, workspace)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}

	var st Status
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, faults.UserInput("Status file %s is corrupted: %v", path, err)
	}
	if err := CheckVersion(st.FormatVersion); err != nil {
		return nil, err
	}
	return &st, nil
}

// CheckVersion tells whether a status written with version v can be read.
func CheckVersion(v string) error {
	got, err := semver.ParseTolerant(v)
	if err != nil {
		return faults.UserInput("Status file has an invalid format version %q.", v)
	}
	if got.Major != FormatVersion.Major || got.GT(FormatVersion) {
		return faults.UserInput("Status format version %s is not supported, expected %d.x up to %s. Run the optimization from source again.",
			got, FormatVersion.Major, FormatVersion)
	}
	return nil
}
