package tooling

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/execctx"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/runner"
)

// Templates is the Toolkit built from `tool` blocks. Every argv element is a
// text/template with the sprig function set, rendered against Params.
// Elements rendering to an empty string are dropped, so optional flags can be
// written as `{{ if eq .Precision "fp16" }}--fp16{{ end }}`.
type Templates struct {
	exec  *execctx.Context
	tools map[toolKey]*compiledTool
}

type toolKey struct {
	kind   config.ToolKind
	format config.Format
}

type compiledTool struct {
	tool *config.Tool
	argv []*template.Template
}

var _ Toolkit = (*Templates)(nil)

// NewTemplates compiles every tool. The first tool declared for a kind and
// format wins.
func NewTemplates(tools []*config.Tool, ec *execctx.Context) (*Templates, error) {
	t := &Templates{exec: ec, tools: make(map[toolKey]*compiledTool)}
	for _, tool := range tools {
		key := toolKey{kind: tool.Kind, format: tool.Format}
		if _, ok := t.tools[key]; ok {
			continue
		}
		ct := &compiledTool{tool: tool}
		for i, arg := range tool.Command {
			tmpl, err := template.New(fmt.Sprintf("%s[%d]", tool.Name, i)).
				Funcs(sprig.FuncMap()).
				Option("missingkey=error").
				Parse(arg)
			if err != nil {
				return nil, faults.Configuration("tool %q: failed to parse command element %d: %v", tool.Name, i, err)
			}
			ct.argv = append(ct.argv, tmpl)
		}
		t.tools[key] = ct
	}
	return t, nil
}

func (t *Templates) ExportSpec(p Params) (execctx.Spec, error) {
	return t.spec(config.ToolExport, p)
}

func (t *Templates) ConvertSpec(p Params) (execctx.Spec, error) {
	return t.spec(config.ToolConvert, p)
}

func (t *Templates) NewRunner(p Params) (runner.Runner, error) {
	ct, err := t.lookup(config.ToolRunner, p.Format)
	if err != nil {
		return nil, err
	}
	return &ProcessRunner{tool: ct, exec: t.exec, params: p}, nil
}

func (t *Templates) spec(kind config.ToolKind, p Params) (execctx.Spec, error) {
	ct, err := t.lookup(kind, p.Format)
	if err != nil {
		return execctx.Spec{}, err
	}
	args, err := ct.render(p)
	if err != nil {
		return execctx.Spec{}, err
	}
	return execctx.Spec{Name: p.Name, Args: args, Env: ct.tool.Env, Timeout: ct.tool.Timeout}, nil
}

func (t *Templates) lookup(kind config.ToolKind, format config.Format) (*compiledTool, error) {
	ct, ok := t.tools[toolKey{kind: kind, format: format}]
	if !ok {
		return nil, fmt.Errorf("%w: %s for format %s", ErrNoTool, kind, format)
	}
	return ct, nil
}

func (ct *compiledTool) render(p Params) ([]string, error) {
	args := make([]string, 0, len(ct.argv))
	for _, tmpl := range ct.argv {
		var b strings.Builder
		if err := tmpl.Execute(&b, p); err != nil {
			return nil, faults.Configuration("tool %q: failed to render %s: %v", ct.tool.Name, tmpl.Name(), err)
		}
		if s := b.String(); s != "" {
			args = append(args, s)
		}
	}
	if len(args) == 0 {
		return nil, faults.Configuration("tool %q rendered an empty command", ct.tool.Name)
	}
	return args, nil
}
