// Package statestore defines where a run keeps the mutable state of its
// commands: status, output values and failure.
//
// The store is separate from the command graph. The graph is fixed once the
// manager builds it; the store is written as commands execute and is read by
// the pipeline loop to decide whether requirements were met. One store spans
// every pipeline of an optimize run, so a command may require a command that
// ran in an earlier pipeline.
//
// Lifecycle:
//  1. created once per optimize run, never persisted
//  2. written by the pipeline loop as commands move through
//     PENDING → RUNNING → OK | FAIL | SKIPPED | NOOP
//  3. read back for requirement checks and reporting
//  4. discarded with the run
package statestore

import (
	"context"

	"github.com/specialistvlad/gridnav/internal/command"
)

// Store manages command state during a run. Implementations must be safe
// for concurrent use.
type Store interface {
	// SetStatus records a lifecycle transition of a command.
	SetStatus(ctx context.Context, name string, status command.Status) error

	// GetStatus returns the status of a command, or StatusPending if none
	// was recorded.
	GetStatus(ctx context.Context, name string) (command.Status, error)

	// SetOutput records the values an OK command produced.
	SetOutput(ctx context.Context, name string, values map[string]any) error

	// GetOutput returns recorded values, or nil if there are none.
	GetOutput(ctx context.Context, name string) (map[string]any, error)

	// SetError records why a command failed.
	SetError(ctx context.Context, name string, cmdErr error) error

	// GetError returns the recorded failure, or nil.
	GetError(ctx context.Context, name string) (error, error)
}
