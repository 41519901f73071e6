// Package execctx runs external tools in their own process so that a crash,
// leak or hang in native framework code never takes the orchestrator down.
//
// Every run gets a directory under the workspace holding a reproduce.sh
// script plus the captured stdout.log and stderr.log. The process is torn
// down on every exit path; failures come back as *faults.ExecutionFault.
package execctx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/faults"
	"golang.org/x/sync/errgroup"
)

const defaultWaitDelay = 5 * time.Second

// Spec describes one subprocess.
type Spec struct {
	// Name identifies the run. It doubles as the run directory relative to
	// the workspace, so it should be derived from command name and format.
	Name string
	// Args is the argv; Args[0] is resolved through PATH.
	Args []string
	// Env is added on top of the orchestrator environment.
	Env map[string]string
	// Dir overrides the working directory, which defaults to the run dir.
	Dir string
	// Timeout overrides the context default. Zero keeps the default.
	Timeout time.Duration
}

// Result is what a finished subprocess left behind.
type Result struct {
	Dir      string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Context is the execution boundary shared by the commands of a run.
type Context struct {
	workspace string
	verbose   bool
	timeout   time.Duration
	waitDelay time.Duration
}

// Option configures a Context.
type Option func(*Context)

// WithVerbose streams every output line to the debug log.
func WithVerbose(v bool) Option {
	return func(c *Context) { c.verbose = v }
}

// WithTimeout sets the default per-run timeout. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(c *Context) { c.timeout = d }
}

// WithWaitDelay bounds how long teardown waits for output pipes after the
// process was killed.
func WithWaitDelay(d time.Duration) Option {
	return func(c *Context) { c.waitDelay = d }
}

// New creates an execution boundary rooted at workspace.
func New(workspace string, opts ...Option) *Context {
	c := &Context{workspace: workspace, waitDelay: defaultWaitDelay}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Workspace returns the root directory of run directories.
func (c *Context) Workspace() string {
	return c.workspace
}

// RunDir returns the directory used for a run name.
func (c *Context) RunDir(name string) string {
	return filepath.Join(c.workspace, filepath.FromSlash(name))
}

// Run executes spec and blocks until the process exits or times out. The
// returned Result is non-nil whenever the process was started, including on
// failure, so callers can inspect captured output.
func (c *Context) Run(ctx context.Context, spec Spec) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("run", spec.Name)
	if len(spec.Args) == 0 {
		return nil, faults.Internal("subprocess %q has no arguments", spec.Name)
	}

	dir := c.RunDir(spec.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	workDir := dir
	if spec.Dir != "" {
		workDir = spec.Dir
	}
	if err := writeReproduceScript(filepath.Join(dir, "reproduce.sh"), workDir, spec); err != nil {
		return nil, err
	}

	timeout := c.timeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Args[0], spec.Args[1:]...)
	cmd.Dir = workDir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	cmd.WaitDelay = c.waitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var stdout, stderr strings.Builder
	g := new(errgroup.Group)
	g.Go(func() error { return c.pump(ctx, stdoutR, &stdout, "stdout") })
	g.Go(func() error { return c.pump(ctx, stderrR, &stderr, "stderr") })

	logger.Debug("Starting subprocess", "args", spec.Args, "dir", workDir, "timeout", timeout)
	start := time.Now()
	runErr := cmd.Start()
	if runErr == nil {
		runErr = cmd.Wait()
	}
	stdoutW.Close()
	stderrW.Close()
	if err := g.Wait(); err != nil {
		logger.Warn("Failed to read subprocess output", "error", err)
	}

	res := &Result{
		Dir:      dir,
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err := persistLogs(dir, res); err != nil {
		logger.Warn("Failed to persist subprocess logs", "error", err)
	}

	if runErr == nil {
		logger.Debug("Subprocess finished", "duration", res.Duration)
		return res, nil
	}

	fault := &faults.ExecutionFault{
		Name:     spec.Name,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		fault.TimedOut = true
	case ctx.Err() != nil:
		fault.Err = ctx.Err()
	case errors.As(runErr, &exitErr):
	default:
		fault.Err = runErr
	}
	logger.Debug("Subprocess failed", "exit_code", res.ExitCode, "timed_out", fault.TimedOut, "duration", res.Duration)
	return res, fault
}

// pump copies r line by line into buf until EOF.
func (c *Context) pump(ctx context.Context, r *io.PipeReader, buf *strings.Builder, stream string) error {
	logger := ctxlog.FromContext(ctx)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			buf.WriteString(line)
			if c.verbose {
				logger.Debug(strings.TrimRight(line, "\r\n"), "stream", stream)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			r.CloseWithError(err)
			return err
		}
	}
}

func persistLogs(dir string, res *Result) error {
	if err := os.WriteFile(filepath.Join(dir, "stdout.log"), []byte(res.Stdout), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "stderr.log"), []byte(res.Stderr), 0o644)
}

func mergeEnv(base []string, extra map[string]string) []string {
	out := slices.Clone(base)
	for _, k := range sortedKeys(extra) {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func writeReproduceScript(path, workDir string, spec Spec) error {
	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")
	for _, k := range sortedKeys(spec.Env) {
		fmt.Fprintf(&b, "export %s=%s\n", k, shellQuote(spec.Env[k]))
	}
	fmt.Fprintf(&b, "cd %s\n", shellQuote(workDir))
	quoted := make([]string, len(spec.Args))
	for i, a := range spec.Args {
		quoted[i] = shellQuote(a)
	}
	fmt.Fprintf(&b, "exec %s\n", strings.Join(quoted, " "))
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		return fmt.Errorf("failed to write reproduce script: %w", err)
	}
	return nil
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || r == '=' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
