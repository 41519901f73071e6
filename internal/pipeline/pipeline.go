// Package pipeline executes an ordered list of commands for one target,
// threading the accumulated namespace from each command to the next.
//
// The order is supplied by the manager and trusted: the pipeline never
// reorders commands. It fails fast when that trust turns out to be
// misplaced, for example when a requirement has not run yet or did not
// leave its declared outputs behind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/statestore"
)

// Results is the snapshot of one pipeline run.
type Results struct {
	Name            string           `yaml:"name"`
	ID              string           `yaml:"id"`
	Framework       config.Framework `yaml:"framework"`
	CommandsResults []command.Result `yaml:"commands"`
}

// Statuses returns the status of every command, in run order.
func (r Results) Statuses() []command.Status {
	out := make([]command.Status, len(r.CommandsResults))
	for i, cr := range r.CommandsResults {
		out[i] = cr.Status
	}
	return out
}

// Find returns the result of a command by name.
func (r Results) Find(name string) (command.Result, bool) {
	for _, cr := range r.CommandsResults {
		if cr.Name == name {
			return cr, true
		}
	}
	return command.Result{}, false
}

// AbortError stops the whole optimize run. It wraps the fault that caused
// the abort, so faults.IsInternal and friends still see it.
type AbortError struct {
	Pipeline string
	Command  string
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("pipeline %s aborted at command %s: %v", e.Pipeline, e.Command, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// ErrRequirementFailed is wrapped by the abort of a required command whose
// requirement did not reach OK.
var ErrRequirementFailed = errors.New("required command cannot run")

// Pipeline is an ordered list of commands for one framework and target.
type Pipeline struct {
	name      string
	id        string
	framework config.Framework
	commands  []command.Command
	observers []Observer
}

// New builds a pipeline. Command names must be unique and no two commands may
// declare the same output key.
func New(name string, framework config.Framework, commands ...command.Command) (*Pipeline, error) {
	names := make(map[string]struct{}, len(commands))
	producers := make(map[string]string)
	for _, cmd := range commands {
		if _, dup := names[cmd.Name()]; dup {
			return nil, faults.Configuration("pipeline %q lists command %q twice", name, cmd.Name())
		}
		names[cmd.Name()] = struct{}{}
		for _, key := range cmd.Outputs() {
			if other, dup := producers[key]; dup {
				return nil, faults.Configuration("pipeline %q: commands %q and %q both declare output %q", name, other, cmd.Name(), key)
			}
			producers[key] = cmd.Name()
		}
	}
	return &Pipeline{
		name:      name,
		id:        pipelineID(name),
		framework: framework,
		commands:  commands,
	}, nil
}

// pipelineID derives a stable identifier, e.g. "TensorRT pipeline" becomes
// "tensorrt_pipeline".
func pipelineID(name string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(name))
}

func (p *Pipeline) Name() string                { return p.name }
func (p *Pipeline) ID() string                  { return p.id }
func (p *Pipeline) Framework() config.Framework { return p.framework }
func (p *Pipeline) Commands() []command.Command { return slices.Clone(p.commands) }

// AddObserver registers observers notified around every command.
func (p *Pipeline) AddObserver(observers ...Observer) {
	p.observers = append(p.observers, observers...)
}

// Run executes every command in order. ns is read by every command and
// receives the outputs of OK commands. store records command state and may be
// shared with earlier pipelines of the same optimize run.
//
// The returned Results are always populated with the commands that ran. A
// non-nil error is an *AbortError: the run cannot continue.
func (p *Pipeline) Run(ctx context.Context, ns command.Namespace, store statestore.Store) (Results, error) {
	logger := ctxlog.FromContext(ctx).With("pipeline", p.name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("▶️ Starting pipeline", "commands", len(p.commands))

	res := Results{Name: p.name, ID: p.id, Framework: p.framework}
	for _, cmd := range p.commands {
		cr, err := p.runCommand(ctx, cmd, ns, store)
		res.CommandsResults = append(res.CommandsResults, cr)
		if err != nil {
			logger.Error("Pipeline aborted.", "command", cmd.Name(), "error", err)
			return res, &AbortError{Pipeline: p.name, Command: cmd.Name(), Err: err}
		}
	}

	logger.Info("✅ Finished pipeline", "statuses", res.Statuses())
	return res, nil
}

// runCommand returns the recorded result of cmd, and an error when the run
// must abort.
func (p *Pipeline) runCommand(ctx context.Context, cmd command.Command, ns command.Namespace, store statestore.Store) (command.Result, error) {
	logger := ctxlog.FromContext(ctx).With("command", cmd.Name())
	cr := command.Result{Name: cmd.Name()}

	blocked, err := p.checkRequirements(ctx, cmd, ns, store)
	if err != nil {
		return p.finish(ctx, store, cr, command.StatusFail, err), err
	}
	if blocked != "" {
		if cmd.IsRequired() {
			err := fmt.Errorf("%w: %s requires %s, which did not succeed", ErrRequirementFailed, cmd.Name(), blocked)
			return p.finish(ctx, store, cr, command.StatusFail, err), err
		}
		logger.Warn("Skipping command, requirement did not succeed.", "requirement", blocked)
		return p.finish(ctx, store, cr, command.StatusSkipped, nil), nil
	}

	if err := store.SetStatus(ctx, cmd.Name(), command.StatusRunning); err != nil {
		return p.finish(ctx, store, cr, command.StatusFail, err), err
	}
	p.notifyStarted(ctx, cmd.Name())
	logger.Info("▶️ Starting command")
	logger.Debug("Command namespace.", "keys", ns.Keys())

	start := time.Now()
	out, runErr := cmd.Run(ctx, ns)
	cr.Duration = time.Since(start)

	if runErr != nil {
		if faults.IsFatal(runErr) {
			return p.finish(ctx, store, cr, command.StatusFail, runErr), runErr
		}
		logger.Warn("Command failed.", "error", runErr)
		cr = p.finish(ctx, store, cr, command.StatusFail, runErr)
		return cr, p.abortIfRequired(cmd, runErr)
	}

	switch out.Status {
	case command.StatusOK:
		if err := checkDeclared(cmd, out.Values); err != nil {
			return p.finish(ctx, store, cr, command.StatusFail, err), err
		}
		ns.Merge(out.Values)
		if err := store.SetOutput(ctx, cmd.Name(), out.Values); err != nil {
			return p.finish(ctx, store, cr, command.StatusFail, err), err
		}
	case command.StatusFail:
		cr.Output = out.Values
		cr = p.finish(ctx, store, cr, command.StatusFail, nil)
		return cr, p.abortIfRequired(cmd, errors.New("command reported failure"))
	case command.StatusNoop, command.StatusSkipped:
	default:
		err := faults.Internal("command %s returned non-terminal status %q", cmd.Name(), out.Status)
		return p.finish(ctx, store, cr, command.StatusFail, err), err
	}

	cr.Output = out.Values
	cr = p.finish(ctx, store, cr, out.Status, nil)
	logger.Info("✅ Finished command", "status", cr.Status, "duration", cr.Duration)
	return cr, nil
}

// checkRequirements returns the name of the first requirement that did not
// reach OK, or an error when the manager's order cannot be trusted.
func (p *Pipeline) checkRequirements(ctx context.Context, cmd command.Command, ns command.Namespace, store statestore.Store) (string, error) {
	for _, req := range cmd.Requires() {
		status, err := store.GetStatus(ctx, req.Name())
		if err != nil {
			return "", err
		}
		if !status.Terminal() {
			return "", faults.Internal("command %s runs before its requirement %s", cmd.Name(), req.Name())
		}
		if status != command.StatusOK {
			return req.Name(), nil
		}
		for _, key := range req.Outputs() {
			if !ns.Has(key) {
				return "", faults.Internal("requirement %s of %s succeeded but output %q is missing from the namespace", req.Name(), cmd.Name(), key)
			}
		}
	}
	return "", nil
}

func checkDeclared(cmd command.Command, values map[string]any) error {
	declared := cmd.Outputs()
	for key := range values {
		if !slices.Contains(declared, key) {
			return faults.Internal("command %s produced undeclared output %q", cmd.Name(), key)
		}
	}
	return nil
}

func (p *Pipeline) abortIfRequired(cmd command.Command, err error) error {
	if !cmd.IsRequired() {
		return nil
	}
	return fmt.Errorf("required command %s failed: %w", cmd.Name(), err)
}

// finish records the terminal state of a command and notifies observers.
func (p *Pipeline) finish(ctx context.Context, store statestore.Store, cr command.Result, status command.Status, cmdErr error) command.Result {
	logger := ctxlog.FromContext(ctx)
	cr.Status = status
	if cmdErr != nil {
		cr.Error = cmdErr.Error()
		if err := store.SetError(ctx, cr.Name, cmdErr); err != nil {
			logger.Error("Failed to record command error.", "command", cr.Name, "error", err)
		}
	}
	if err := store.SetStatus(ctx, cr.Name, status); err != nil {
		logger.Error("Failed to record command status.", "command", cr.Name, "error", err)
	}
	p.notifyFinished(ctx, cr)
	return cr
}
