package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/status"
	"github.com/specialistvlad/gridnav/internal/tensor"
)

// LoadMetadata restores the metadata of a previous run from status.yaml
// together with the exported base artifact.
type LoadMetadata struct {
	command.Base
	env  *Env
	base Variant
}

func NewLoadMetadata(env *Env) *LoadMetadata {
	base := Variant{Format: config.BaseFormat(env.Config.Framework)}
	return &LoadMetadata{
		Base: command.NewBase("load_metadata", true,
			KeyInputMetadata, KeyOutputMetadata, KeyTRTProfile, KeyMaxBatchSize, ArtifactKey(base)),
		env:  env,
		base: base,
	}
}

func (c *LoadMetadata) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	ws := c.env.workspace()
	st, err := status.Load(ws)
	if err != nil {
		return command.Output{}, err
	}
	if st.Framework != c.env.Config.Framework {
		return command.Output{}, faults.UserInput("Workspace %s was optimized from a %s model, but the run is configured for %s.",
			ws, st.Framework, c.env.Config.Framework)
	}
	if st.InputMetadata == nil || st.OutputMetadata == nil {
		return command.Output{}, faults.UserInput("Status file in %s holds no tensor metadata. Run the optimization from source first.", ws)
	}

	artifact := ArtifactPath(ws, c.base)
	if st.BaseArtifact != "" {
		artifact = filepath.Join(ws, filepath.FromSlash(st.BaseArtifact))
	}
	if _, err := os.Stat(artifact); err != nil {
		return command.Output{}, faults.UserInput("Exported model %s is missing from the workspace: %v", artifact, err)
	}

	profile := st.TRTProfile
	if profile == nil {
		profile = &tensor.Profile{}
	}

	ctxlog.FromContext(ctx).Info("Loaded metadata from workspace.",
		"run_id", st.RunID, "format_version", st.FormatVersion, "inputs", st.InputMetadata.String())
	return command.OK(map[string]any{
		KeyInputMetadata:    st.InputMetadata,
		KeyOutputMetadata:   st.OutputMetadata,
		KeyTRTProfile:       profile,
		KeyMaxBatchSize:     st.MaxBatchSize,
		ArtifactKey(c.base): artifact,
	}), nil
}
