package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/gridnav/internal/app"
	"github.com/specialistvlad/gridnav/internal/faults"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitUserInput     = 3
	ExitConfiguration = 4
	ExitExecution     = 5
	ExitInternal      = 70
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("gridnav", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Gridnav - Finds the fastest correct deployment format of a trained model.

Usage:
  gridnav [options] [CONFIG_PATH...]

Arguments:
  CONFIG_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	var configPaths stringList
	flagSet.Var(&configPaths, "config", "Path to a config file or directory. Repeatable.")
	flagSet.Var(&configPaths, "c", "Path to a config file or directory (shorthand).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	metricsPortFlag := flagSet.Int("metrics-port", 0, "Port for the health check and Prometheus metrics server. 0 is disabled.")
	eventsURLFlag := flagSet.String("events-url", "", "Socket.IO server URL receiving progress events. Empty is disabled.")
	eventsNamespaceFlag := flagSet.String("events-namespace", "/", "Socket.IO namespace for progress events.")
	eventsInsecureFlag := flagSet.Bool("events-insecure", false, "Skip TLS certificate verification for the events server.")
	workspaceFlag := flagSet.String("workspace", "", "Override the workspace directory of the config.")
	timeoutFlag := flagSet.Duration("timeout", 0, "Override the default timeout of external tools. 0 keeps the config value.")
	verboseFlag := flagSet.Bool("verbose", false, "Stream the output of external tools.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := append([]string(nil), configPaths...)
	paths = append(paths, flagSet.Args()...)
	slog.Debug("Config paths determined.", "paths", paths)

	if len(paths) == 0 {
		slog.Debug("No config path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *metricsPortFlag < 0 || *metricsPortFlag > 65535 {
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("invalid metrics-port: %d", *metricsPortFlag)}
	}
	slog.Debug("CLI parameter validation complete.")

	cfg, err := app.NewConfig(app.Config{
		ConfigPaths:     paths,
		Workspace:       *workspaceFlag,
		Timeout:         *timeoutFlag,
		Verbose:         *verboseFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		MetricsPort:     *metricsPortFlag,
		EventsURL:       *eventsURLFlag,
		EventsNamespace: *eventsNamespaceFlag,
		EventsInsecure:  *eventsInsecureFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", cfg)
	return cfg, false, nil
}

// ToExitError maps a run error onto the process exit code of its fault
// class. Errors that already are an *ExitError pass through.
func ToExitError(err error) *ExitError {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}

	code := ExitFailure
	switch {
	case faults.IsInternal(err):
		code = ExitInternal
	case faults.IsConfiguration(err):
		code = ExitConfiguration
	case faults.IsUserInput(err):
		code = ExitUserInput
	default:
		if _, ok := faults.AsExecution(err); ok {
			code = ExitExecution
		}
	}

	return &ExitError{Code: code, Message: err.Error()}
}
