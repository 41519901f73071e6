package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/tensor"
)

const modelConfigTemplate = `# Generated by gridnav for {{ .Variant }}. Do not edit.
format: {{ .Variant.Format }}
{{- with .Variant.Precision }}
precision: {{ . }}
{{- end }}
model: {{ .Artifact | quote }}
max_batch_size: {{ .MaxBatchSize }}
inputs:
{{- range .Inputs }}
  - name: {{ .Name | quote }}
    dtype: {{ .DType }}
    shape: [{{ .Shape | join ", " }}]
{{- if .Optional }}
    optional: true
{{- end }}
{{- end }}
outputs:
{{- range .Outputs }}
  - name: {{ .Name | quote }}
    dtype: {{ .DType }}
    shape: [{{ .Shape | join ", " }}]
{{- end }}
`

var modelConfig = template.Must(template.New("config.yaml").
	Funcs(sprig.FuncMap()).
	Option("missingkey=error").
	Parse(modelConfigTemplate))

// ConfigCli writes a serving config for a variant artifact next to it.
type ConfigCli struct {
	command.Base
	env     *Env
	variant Variant
}

func NewConfigCli(env *Env, v Variant, requires ...command.Command) *ConfigCli {
	v = v.Artifact()
	c := &ConfigCli{
		Base:    command.NewBase("config_cli_"+v.String(), false, ConfigKey(v)),
		env:     env,
		variant: v,
	}
	c.Require(requires...)
	return c
}

func (c *ConfigCli) Run(ctx context.Context, ns command.Namespace) (command.Output, error) {
	artifact, err := command.Lookup[string](ns, ArtifactKey(c.variant))
	if err != nil {
		return command.Output{}, err
	}
	inputs, err := command.Lookup[*tensor.Metadata](ns, KeyInputMetadata)
	if err != nil {
		return command.Output{}, err
	}
	outputs, err := command.Lookup[*tensor.Metadata](ns, KeyOutputMetadata)
	if err != nil {
		return command.Output{}, err
	}
	maxBatch, err := command.LookupOr(ns, KeyMaxBatchSize, 0)
	if err != nil {
		return command.Output{}, err
	}

	rel, err := filepath.Rel(c.env.workspace(), artifact)
	if err != nil {
		rel = artifact
	}
	var buf bytes.Buffer
	err = modelConfig.Execute(&buf, map[string]any{
		"Variant":      c.variant,
		"Artifact":     filepath.ToSlash(rel),
		"MaxBatchSize": maxBatch,
		"Inputs":       inputs.Specs(),
		"Outputs":      outputs.Specs(),
	})
	if err != nil {
		return command.Output{}, fmt.Errorf("failed to render model config: %w", err)
	}

	path := filepath.Join(ArtifactDir(c.env.workspace(), c.variant), "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return command.Output{}, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return command.Output{}, fmt.Errorf("failed to write model config: %w", err)
	}
	return command.OK(map[string]any{ConfigKey(c.variant): path}), nil
}
