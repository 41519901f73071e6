// Package tooling connects commands to the framework-specific programs that
// export, convert and run models. Those programs live outside the
// orchestrator; a Toolkit only knows how to describe a call to them.
package tooling

import (
	"errors"

	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/execctx"
	"github.com/specialistvlad/gridnav/internal/runner"
)

// ErrNoTool is returned when no tool is declared for a kind and format.
var ErrNoTool = errors.New("no tool declared")

// Params is the data an argv template is rendered with.
type Params struct {
	// Name is the run name, also the run directory under the workspace.
	Name      string
	Framework config.Framework
	Format    config.Format
	Precision config.Precision
	Runtime   config.Runtime

	// Input is the model artifact read by the tool.
	Input string
	// Output is the artifact, or output dump, the tool writes.
	Output    string
	Workspace string
	// Samples is a msgpack dump of input samples.
	Samples string
	// Profile is a YAML file with the shape profiles to build for.
	Profile string
	// Custom holds the format-specific options.
	Custom config.CustomConfig
}

// Toolkit describes how to call external tools for a run.
type Toolkit interface {
	// ExportSpec describes the call that serializes the source model to
	// its base format.
	ExportSpec(p Params) (execctx.Spec, error)
	// ConvertSpec describes the call producing p.Output from p.Input.
	ConvertSpec(p Params) (execctx.Spec, error)
	// NewRunner returns a runner executing the artifact p.Input.
	NewRunner(p Params) (runner.Runner, error)
}
