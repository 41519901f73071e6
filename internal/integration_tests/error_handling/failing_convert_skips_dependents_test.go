package integration_tests

import (
	"testing"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/specialistvlad/gridnav/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A failing conversion is a FAIL result, not an abort: its dependents are
// skipped and the other formats still compete for the best variant.
func TestErrorHandling_FailingConvert_SkipsDependents(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	files := map[string]string{
		"model.onnx": "onnx",
		"config/main.hcl": `
			optimize {
				framework      = "onnx"
				model          = "${env.GRIDNAV_ROOT}/model.onnx"
				data           = "${env.GRIDNAV_ROOT}/samples.msgpack"
				workspace      = "${env.GRIDNAV_ROOT}/workspace"
				target_formats = ["onnx", "tensorrt"]
				onnx {
					runtimes = ["cpu"]
				}
				tensorrt {
					precision = ["fp16"]
				}
				` + testutil.FastProfile + `
			}

			tool "broken_trtexec" {
				kind    = "convert"
				format  = "tensorrt"
				command = ["sh", "-c", "echo 'engine build failed' >&2; exit 3"]
			}
		` + testutil.IdentityRunner("onnx") + testutil.IdentityRunner("tensorrt"),
	}

	// --- Act ---
	result := testutil.RunIntegrationTest(t, testutil.Project{
		Files:   files,
		Samples: []tensor.Sample{testutil.Sample(1), testutil.Sample(2)},
	})

	// --- Assert ---
	require.NoError(t, result.Err)
	convert := testutil.CommandResult(t, result, "convert_onnx_to_tensorrt-fp16")
	assert.Equal(t, command.StatusFail, convert.Status)
	assert.Contains(t, convert.Error, "engine build failed")
	testutil.AssertCommandStatus(t, result, "correctness_tensorrt-fp16", command.StatusSkipped)
	testutil.AssertCommandStatus(t, result, "performance_tensorrt-fp16", command.StatusSkipped)
	testutil.AssertCommandStatus(t, result, "performance_onnx-cpu", command.StatusOK)
	require.NotNil(t, result.Report.Best)
	assert.Equal(t, "onnx-cpu", result.Report.Best.String())
}
