package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/specialistvlad/gridnav/internal/tooling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func shTool(name string, kind config.ToolKind, format config.Format, script string) *config.Tool {
	return &config.Tool{Name: name, Kind: kind, Format: format, Command: []string{"/bin/sh", "-c", script}}
}

// dumped is a namespace holding the input dump directory.
func dumped(t *testing.T) command.Namespace {
	t.Helper()
	return command.Namespace{KeyInputDataPath: t.TempDir()}
}

func TestExport_CopiesModelWithoutTool(t *testing.T) {
	// Arrange
	model := filepath.Join(t.TempDir(), "model.onnx")
	writeFile(t, model, "weights")
	env, _ := newTestEnv(t, nil, nil)
	env.Config.ModelPath = model
	cmd := NewExport(env)

	// Act
	out, err := cmd.Run(context.Background(), dumped(t))

	// Assert
	require.NoError(t, err)
	path := out.Values[ArtifactKey(Variant{Format: config.FormatONNX})].(string)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.Equal(t, "export_onnx", cmd.Name())
	assert.True(t, cmd.IsRequired())
}

func TestExport_RunsTool(t *testing.T) {
	env, _ := newTestEnv(t, nil, []*config.Tool{
		shTool("export", config.ToolExport, config.FormatONNX, "echo exported > {{ .Output }}"),
	})

	out, err := NewExport(env).Run(context.Background(), dumped(t))

	require.NoError(t, err)
	data, err := os.ReadFile(out.Values["artifact.onnx"].(string))
	require.NoError(t, err)
	assert.Equal(t, "exported\n", string(data))
}

func TestExport_ToolWritesNothing(t *testing.T) {
	env, _ := newTestEnv(t, nil, []*config.Tool{
		shTool("export", config.ToolExport, config.FormatONNX, "true"),
	})

	_, err := NewExport(env).Run(context.Background(), dumped(t))

	require.Error(t, err)
	_, ok := faults.AsExecution(err)
	assert.True(t, ok)
}

func TestExport_SamplesComeFromInputDump(t *testing.T) {
	testCases := []struct {
		name    string
		ns      command.Namespace
		want    string
		wantErr bool
	}{
		{
			name: "tool gets the conversion dump",
			ns:   command.Namespace{KeyInputDataPath: "/ws/input_data"},
			want: filepath.Join("/ws/input_data", conversionDump),
		},
		{
			name:    "missing dump is an internal fault",
			ns:      command.Namespace{},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			env, _ := newTestEnv(t, nil, []*config.Tool{
				shTool("export", config.ToolExport, config.FormatONNX, "echo {{ .Samples }} > {{ .Output }}"),
			})

			// Act
			out, err := NewExport(env).Run(context.Background(), tc.ns)

			// Assert
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, faults.IsInternal(err))
				return
			}
			require.NoError(t, err)
			data, err := os.ReadFile(out.Values["artifact.onnx"].(string))
			require.NoError(t, err)
			assert.Equal(t, tc.want+"\n", string(data))
		})
	}
}

func TestConvert(t *testing.T) {
	onnx := Variant{Format: config.FormatONNX}
	trt := Variant{Format: config.FormatTensorRT, Precision: config.FP16}

	setup := func(t *testing.T) (*Env, command.Namespace) {
		t.Helper()
		env, _ := newTestEnv(t, nil, []*config.Tool{
			shTool("trtexec", config.ToolConvert, config.FormatTensorRT,
				"cat {{ .Input }} > {{ .Output }} && echo {{ .Precision }} >> {{ .Output }} && test -f {{ .Profile }}"),
		})
		input := ArtifactPath(env.workspace(), onnx)
		writeFile(t, input, "onnx\n")
		profile := (&tensor.Profile{}).Add("x", tensor.Shape{1, 3}, tensor.Shape{2, 3}, tensor.Shape{4, 3})
		ns := dumped(t)
		ns[ArtifactKey(onnx)] = input
		ns[KeyTRTProfile] = profile
		return env, ns
	}

	t.Run("builds the artifact", func(t *testing.T) {
		env, ns := setup(t)
		cmd := NewConvert(env, onnx, trt)

		out, err := cmd.Run(context.Background(), ns)

		require.NoError(t, err)
		assert.Equal(t, "convert_onnx_to_tensorrt-fp16", cmd.Name())
		data, err := os.ReadFile(out.Values[ArtifactKey(trt)].(string))
		require.NoError(t, err)
		assert.Equal(t, "onnx\nfp16\n", string(data))

		raw, err := os.ReadFile(filepath.Join(ArtifactDir(env.workspace(), trt), "profiles.yaml"))
		require.NoError(t, err)
		var profiles []*tensor.Profile
		require.NoError(t, yaml.Unmarshal(raw, &profiles))
		require.Len(t, profiles, 1)
		assert.True(t, ns[KeyTRTProfile].(*tensor.Profile).Equal(profiles[0]))
	})

	t.Run("inplace reuses an existing artifact", func(t *testing.T) {
		env, ns := setup(t)
		env.Config.Inplace = true
		writeFile(t, ArtifactPath(env.workspace(), trt), "cached")

		out, err := NewConvert(env, onnx, trt).Run(context.Background(), ns)

		require.NoError(t, err)
		assert.Equal(t, command.StatusNoop, out.Status)
	})

	t.Run("missing tool", func(t *testing.T) {
		env, ns := setup(t)
		tf := Variant{Format: config.FormatTFTRT, Precision: config.FP32}

		_, err := NewConvert(env, onnx, tf).Run(context.Background(), ns)

		assert.ErrorIs(t, err, tooling.ErrNoTool)
		assert.False(t, faults.IsFatal(err))
	})
}
