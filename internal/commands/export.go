package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/fsutil"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/specialistvlad/gridnav/internal/tooling"
	"gopkg.in/yaml.v3"
)

// Export serializes the source model to its base format in the workspace.
// Without an export tool the model is taken to already be in its base
// format and is copied.
type Export struct {
	command.Base
	env  *Env
	base Variant
}

func NewExport(env *Env, requires ...command.Command) *Export {
	base := Variant{Format: config.BaseFormat(env.Config.Framework)}
	c := &Export{
		Base: command.NewBase("export_"+base.String(), true, ArtifactKey(base)),
		env:  env,
		base: base,
	}
	c.Require(requires...)
	return c
}

// Variant returns the base variant the command produces.
func (c *Export) Variant() Variant { return c.base }

func (c *Export) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := c.env.Config
	ws := c.env.workspace()
	out := ArtifactPath(ws, c.base)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return command.Output{}, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	samples, err := samplesPath(ns)
	if err != nil {
		return command.Output{}, err
	}
	spec, err := c.env.Toolkit.ExportSpec(tooling.Params{
		Name:      "export/" + c.base.String(),
		Framework: cfg.Framework,
		Format:    c.base.Format,
		Input:     cfg.ModelPath,
		Output:    out,
		Workspace: ws,
		Samples:   samples,
		Custom:    cfg.Custom(c.base.Format),
	})
	switch {
	case errors.Is(err, tooling.ErrNoTool):
		logger.Info("No export tool declared, copying the model into the workspace.", "model", cfg.ModelPath)
		if err := fsutil.Copy(cfg.ModelPath, out); err != nil {
			return command.Output{}, faults.UserInput("Unable to copy model %s into the workspace: %v", cfg.ModelPath, err)
		}
	case err != nil:
		return command.Output{}, err
	default:
		if _, err := c.env.Exec.Run(ctx, spec); err != nil {
			return command.Output{}, err
		}
		if err := expectArtifact(spec.Name, out); err != nil {
			return command.Output{}, err
		}
	}
	return command.OK(map[string]any{ArtifactKey(c.base): out}), nil
}

// Convert produces one variant artifact from another through a convert tool.
type Convert struct {
	command.Base
	env      *Env
	from, to Variant
}

func NewConvert(env *Env, from, to Variant, requires ...command.Command) *Convert {
	to = to.Artifact()
	c := &Convert{
		Base: command.NewBase(fmt.Sprintf("convert_%s_to_%s", from.Artifact(), to), false, ArtifactKey(to)),
		env:  env,
		from: from.Artifact(),
		to:   to,
	}
	c.Require(requires...)
	return c
}

// Variant returns the variant the command produces.
func (c *Convert) Variant() Variant { return c.to }

func (c *Convert) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := c.env.Config
	ws := c.env.workspace()

	input, err := command.Lookup[string](ns, ArtifactKey(c.from))
	if err != nil {
		return command.Output{}, err
	}
	out := ArtifactPath(ws, c.to)
	if cfg.Inplace {
		if _, err := os.Stat(out); err == nil {
			logger.Info("Artifact already in workspace, reusing it.", "artifact", out)
			return command.Noop(), nil
		}
	}
	if err := os.RemoveAll(out); err != nil {
		return command.Output{}, fmt.Errorf("failed to clear stale artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return command.Output{}, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	samples, err := samplesPath(ns)
	if err != nil {
		return command.Output{}, err
	}
	profilePath, err := c.writeProfiles(ns)
	if err != nil {
		return command.Output{}, err
	}

	spec, err := c.env.Toolkit.ConvertSpec(tooling.Params{
		Name:      "convert/" + c.to.String(),
		Framework: cfg.Framework,
		Format:    c.to.Format,
		Precision: c.to.Precision,
		Input:     input,
		Output:    out,
		Workspace: ws,
		Samples:   samples,
		Profile:   profilePath,
		Custom:    cfg.Custom(c.to.Format),
	})
	if err != nil {
		return command.Output{}, err
	}
	if _, err := c.env.Exec.Run(ctx, spec); err != nil {
		return command.Output{}, err
	}
	if err := expectArtifact(spec.Name, out); err != nil {
		return command.Output{}, err
	}
	return command.OK(map[string]any{ArtifactKey(c.to): out}), nil
}

// writeProfiles stores the shape profiles a TensorRT build needs: the ones
// from the config, or the one derived from the data source. Formats not
// compiled with TensorRT get no profile file.
func (c *Convert) writeProfiles(ns command.Namespace) (string, error) {
	opts := c.env.Config.TensorRTOptionsFor(c.to.Format)
	if opts == nil {
		return "", nil
	}
	profiles := opts.Profiles()
	if len(profiles) == 0 {
		derived, err := command.LookupOr[*tensor.Profile](ns, KeyTRTProfile, nil)
		if err != nil {
			return "", err
		}
		if derived == nil {
			return "", nil
		}
		profiles = []*tensor.Profile{derived}
	}

	data, err := yaml.Marshal(profiles)
	if err != nil {
		return "", fmt.Errorf("failed to encode shape profiles: %w", err)
	}
	path := filepath.Join(ArtifactDir(c.env.workspace(), c.to), "profiles.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write shape profiles: %w", err)
	}
	return path, nil
}

// samplesPath is the conversion sample dump handed to export and convert
// tools.
func samplesPath(ns command.Namespace) (string, error) {
	dir, err := command.Lookup[string](ns, KeyInputDataPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, conversionDump), nil
}

func expectArtifact(run, path string) error {
	if _, err := os.Stat(path); err != nil {
		return &faults.ExecutionFault{Name: run, Err: fmt.Errorf("tool exited cleanly but wrote no artifact at %s", path)}
	}
	return nil
}
