// Package commands holds the concrete commands the manager composes into
// pipelines: metadata inference, data capture, export, conversion,
// correctness and performance checks, config generation and reloading a
// previous workspace.
//
// Commands read run parameters from an Env fixed at build time and the
// results of earlier commands from the namespace. They never talk to each
// other directly.
package commands

import (
	"time"

	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/execctx"
	"github.com/specialistvlad/gridnav/internal/tooling"
)

// Namespace keys written by the commands of this package.
const (
	KeyInputMetadata        = "input_metadata"
	KeyOutputMetadata       = "output_metadata"
	KeyTRTProfile           = "dataloader_trt_profile"
	KeyMaxBatchSize         = "dataloader_max_batch_size"
	KeyProfilingSample      = "profiling_sample"
	KeyCorrectnessSamples   = "correctness_samples"
	KeyConversionSamples    = "conversion_samples"
	KeyReferenceOutputs     = "reference_outputs"
	KeyInputDataPath        = "input_data_path"
	KeyReferenceOutputsPath = "reference_outputs_path"
)

// Env is what every command of a run shares.
type Env struct {
	Config  *config.OptimizeConfig
	Toolkit tooling.Toolkit
	Exec    *execctx.Context
	// Source is the user data source. It is nil when the run reloads a
	// previous workspace.
	Source dataloader.Source
	// Now is the clock used for performance measurement.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) workspace() string {
	return e.Exec.Workspace()
}
