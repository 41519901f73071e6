// Package command defines the unit of work executed by pipelines: a named
// operation with declared requirements, declared namespace outputs and a
// structured result.
package command

import (
	"context"
	"time"
)

// Status is the state of one command within a pipeline run.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusOK      Status = "OK"
	StatusFail    Status = "FAIL"
	StatusSkipped Status = "SKIPPED"
	// StatusNoop means the command had nothing to do, e.g. the artifact
	// already existed. Dependents treat it like any other non-OK state.
	StatusNoop Status = "NOOP"
)

// Terminal reports whether the command has finished, one way or another.
func (s Status) Terminal() bool {
	switch s {
	case StatusOK, StatusFail, StatusSkipped, StatusNoop:
		return true
	}
	return false
}

// Command is one node of a pipeline.
type Command interface {
	// Name is unique within a manager run.
	Name() string
	// Requires lists the commands that must reach OK before this one runs.
	Requires() []Command
	// IsRequired marks commands without which the run cannot produce a
	// usable artifact. Their failure aborts the run.
	IsRequired() bool
	// Outputs lists the namespace keys an OK run writes.
	Outputs() []string
	// Run executes the command against the accumulated namespace.
	Run(ctx context.Context, ns Namespace) (Output, error)
}

// Output is what a command returns.
type Output struct {
	Status Status
	Values map[string]any
}

// OK returns a successful output carrying values.
func OK(values map[string]any) Output {
	return Output{Status: StatusOK, Values: values}
}

// Noop returns an output for a command that had nothing to do.
func Noop() Output {
	return Output{Status: StatusNoop}
}

// Fail returns a failed output. Commands usually return an error instead;
// Fail is for verdicts such as a correctness check outside tolerance.
func Fail(values map[string]any) Output {
	return Output{Status: StatusFail, Values: values}
}

// Result is the recorded outcome of one command in a pipeline run.
type Result struct {
	Name     string         `yaml:"name"`
	Status   Status         `yaml:"status"`
	Output   map[string]any `yaml:"-"`
	Error    string         `yaml:"error,omitempty"`
	Duration time.Duration  `yaml:"duration"`
}

// Base carries the bookkeeping every command needs. Concrete commands embed
// it and implement Run.
type Base struct {
	name     string
	requires []Command
	required bool
	outputs  []string
}

// NewBase declares a command.
func NewBase(name string, required bool, outputs ...string) Base {
	return Base{name: name, required: required, outputs: outputs}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Requires() []Command { return b.requires }
func (b *Base) IsRequired() bool    { return b.required }
func (b *Base) Outputs() []string   { return b.outputs }

// Require adds requirement edges.
func (b *Base) Require(cmds ...Command) {
	b.requires = append(b.requires, cmds...)
}

// RunFunc is the body of a Func command.
type RunFunc func(ctx context.Context, ns Namespace) (Output, error)

// Func is a command whose body is a function value.
type Func struct {
	Base
	fn RunFunc
}

// NewFunc builds a command from a function.
func NewFunc(name string, required bool, outputs []string, fn RunFunc, requires ...Command) *Func {
	f := &Func{Base: NewBase(name, required, outputs...), fn: fn}
	f.Require(requires...)
	return f
}

func (f *Func) Run(ctx context.Context, ns Namespace) (Output, error) {
	return f.fn(ctx, ns)
}
