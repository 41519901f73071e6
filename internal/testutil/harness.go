// Package testutil drives the whole application from HCL files for system
// tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridnav/internal/app"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/hcl_adapter"
	"github.com/specialistvlad/gridnav/internal/manager"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/stretchr/testify/require"
)

// RootEnv is the environment variable HCL files can use to reach the test
// root, e.g. `model = "${env.GRIDNAV_ROOT}/model.onnx"`.
const RootEnv = "GRIDNAV_ROOT"

// Project is the on-disk layout of one system test. Files are written
// relative to the test root; every .hcl file under config/ is loaded.
type Project struct {
	Files map[string]string
	// Samples, when set, are dumped to samples.msgpack in the root.
	Samples []tensor.Sample
	// Environ is added to the environment visible to the HCL files.
	Environ []string
}

// HarnessResult holds the outcome of a harness run.
type HarnessResult struct {
	App       *app.App
	Report    *manager.Report
	Err       error
	LogOutput string
	Root      string
}

// RunIntegrationTest provides a standardized harness for running system tests.
func RunIntegrationTest(t *testing.T, p Project) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, p)
}

// RunIntegrationTestWithContext runs the harness with a caller-provided
// context.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, p Project) *HarnessResult {
	t.Helper()

	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	require.NoError(t, os.Mkdir(configDir, 0o755))

	for name, content := range p.Files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	if p.Samples != nil {
		require.NoError(t, dataloader.Dump(filepath.Join(root, "samples.msgpack"), p.Samples))
	}

	appConfig, err := app.NewConfig(app.Config{
		ConfigPaths: []string{configDir},
		LogLevel:    "debug",
		LogFormat:   "text",
	})
	require.NoError(t, err)

	environ := append([]string{fmt.Sprintf("%s=%s", RootEnv, root)}, p.Environ...)
	loader := hcl_adapter.NewLoader().WithEnviron(environ)
	logBuffer := &app.SafeBuffer{}

	result := &HarnessResult{Root: root}
	t.Cleanup(func() {
		if os.Getenv("GRIDNAV_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), result.LogOutput)
		}
	})

	testApp, err := app.NewApp(logBuffer, appConfig, loader)
	if err != nil {
		result.Err = err
		result.LogOutput = logBuffer.String()
		return result
	}
	result.App = testApp
	result.Report, result.Err = testApp.Run(ctx)
	result.LogOutput = logBuffer.String()
	return result
}
