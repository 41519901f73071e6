package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	environ func() []string
}

// NewLoader creates a new HCL configuration loader reading the process
// environment for `env.*` references.
func NewLoader() *Loader {
	return &Loader{environ: processEnviron}
}

// WithEnviron replaces the environment visible to configuration files.
func (l *Loader) WithEnviron(environ []string) *Loader {
	l.environ = func() []string { return environ }
	return l
}

// Load parses every .hcl file under paths, merges the blocks and translates
// them into a validated config. Exactly one `optimize` block must exist
// across all files; `tool` blocks may be spread over any number of files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.OptimizeConfig, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))
	if len(hclFiles) == 0 {
		return nil, faults.Configuration("no .hcl configuration files found in %v", paths)
	}

	parser := hclparse.NewParser()
	evalCtx := newEvalContext(l.environ())

	var optimize *Optimize
	var tools []*Tool
	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, faults.Configuration("failed to parse HCL file %s: %v", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, faults.Configuration("failed to decode HCL file %s: %v", file, diags)
		}

		for _, o := range root.Optimize {
			if optimize != nil {
				return nil, faults.Configuration("only one `optimize` block is allowed, found another in %s", file)
			}
			optimize = o
		}
		tools = append(tools, root.Tools...)
	}
	if optimize == nil {
		return nil, faults.Configuration("no `optimize` block found in %v", hclFiles)
	}

	cfg, err := l.translateOptimize(ctx, optimize, evalCtx)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		tool, err := translateTool(t)
		if err != nil {
			return nil, err
		}
		cfg.Tools = append(cfg.Tools, tool)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "framework", cfg.Framework, "targets", cfg.Targets(), "tools", len(cfg.Tools))
	return cfg, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			files, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
			for _, p := range files {
				if _, wasSeen := seen[p]; !wasSeen {
					allFiles = append(allFiles, p)
					seen[p] = struct{}{}
				}
			}
		} else if filepath.Ext(path) == ".hcl" {
			if _, wasSeen := seen[path]; !wasSeen {
				allFiles = append(allFiles, path)
				seen[path] = struct{}{}
			}
		}
	}
	return allFiles, nil
}
