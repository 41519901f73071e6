package testutil

import (
	"testing"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/stretchr/testify/require"
)

// CommandResult finds the result of a command in any pipeline of the run.
func CommandResult(t *testing.T, result *HarnessResult, name string) command.Result {
	t.Helper()
	require.NotNil(t, result.Report, "run produced no report: %v", result.Err)
	for _, p := range result.Report.Pipelines {
		for _, cr := range p.CommandsResults {
			if cr.Name == name {
				return cr
			}
		}
	}
	require.Failf(t, "command not found", "command %q is not part of the run", name)
	return command.Result{}
}

// AssertCommandStatus checks the final status of a command.
func AssertCommandStatus(t *testing.T, result *HarnessResult, name string, want command.Status) {
	t.Helper()
	cr := CommandResult(t, result, name)
	require.Equal(t, want, cr.Status, "command %q: %s", name, cr.Error)
}

// AssertAllOK checks that every command of the run finished OK.
func AssertAllOK(t *testing.T, result *HarnessResult) {
	t.Helper()
	require.NoError(t, result.Err)
	for _, p := range result.Report.Pipelines {
		for _, cr := range p.CommandsResults {
			require.Equal(t, command.StatusOK, cr.Status, "%s/%s: %s", p.Name, cr.Name, cr.Error)
		}
	}
}
