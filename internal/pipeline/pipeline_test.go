package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/inmemorystore"
	"github.com/specialistvlad/gridnav/internal/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func produce(name string, required bool, key string, value any, requires ...command.Command) *command.Func {
	var outputs []string
	if key != "" {
		outputs = []string{key}
	}
	return command.NewFunc(name, required, outputs, func(context.Context, command.Namespace) (command.Output, error) {
		if key == "" {
			return command.OK(nil), nil
		}
		return command.OK(map[string]any{key: value}), nil
	}, requires...)
}

func failing(name string, required bool, err error, requires ...command.Command) *command.Func {
	return command.NewFunc(name, required, []string{name + ".out"}, func(context.Context, command.Namespace) (command.Output, error) {
		return command.Output{}, err
	}, requires...)
}

// recorder is an observer capturing the event sequence.
type recorder struct {
	events []string
}

func (r *recorder) CommandStarted(_ context.Context, _, cmd string) {
	r.events = append(r.events, "start:"+cmd)
}

func (r *recorder) CommandFinished(_ context.Context, _ string, res command.Result) {
	r.events = append(r.events, "finish:"+res.Name+":"+string(res.Status))
}

func TestPipeline_ThreadsNamespace(t *testing.T) {
	export := produce("export", true, "artifact.onnx", "ws/onnx/model.onnx")
	var seen string
	correctness := command.NewFunc("correctness", false, nil, func(_ context.Context, ns command.Namespace) (command.Output, error) {
		v, err := command.Lookup[string](ns, "artifact.onnx")
		seen = v
		return command.OK(nil), err
	}, export)

	p, err := New("ONNX pipeline", config.ONNX, export, correctness)
	require.NoError(t, err)
	rec := &recorder{}
	p.AddObserver(rec)

	ns := command.Namespace{}
	store := inmemorystore.New()
	res, err := p.Run(context.Background(), ns, store)
	require.NoError(t, err)

	assert.Equal(t, "onnx_pipeline", res.ID)
	assert.Equal(t, []command.Status{command.StatusOK, command.StatusOK}, res.Statuses())
	assert.Equal(t, "ws/onnx/model.onnx", seen)
	assert.Equal(t, "ws/onnx/model.onnx", ns["artifact.onnx"])

	out, err := store.GetOutput(context.Background(), "export")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"artifact.onnx": "ws/onnx/model.onnx"}, out)

	assert.Equal(t, []string{
		"start:export", "finish:export:OK",
		"start:correctness", "finish:correctness:OK",
	}, rec.events)
}

func TestPipeline_FailureCascadesToSkip(t *testing.T) {
	crash := &faults.ExecutionFault{Name: "convert", ExitCode: 139, Stderr: "segfault"}
	convert := failing("convert", false, crash)
	correctness := produce("correctness", false, "correctness.trt", true, convert)
	performance := produce("performance", false, "performance.trt", 1.0, convert)

	var sawSkippedOutput bool
	report := command.NewFunc("report", false, nil, func(_ context.Context, ns command.Namespace) (command.Output, error) {
		sawSkippedOutput = ns.Has("correctness.trt") || ns.Has("convert.out")
		return command.OK(nil), nil
	})

	p, err := New("TensorRT pipeline", config.ONNX, convert, correctness, performance, report)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), command.Namespace{}, inmemorystore.New())
	require.NoError(t, err)
	assert.Equal(t, []command.Status{
		command.StatusFail, command.StatusSkipped, command.StatusSkipped, command.StatusOK,
	}, res.Statuses())
	assert.False(t, sawSkippedOutput)

	failed, ok := res.Find("convert")
	require.True(t, ok)
	assert.Contains(t, failed.Error, "exit code 139")
	assert.Contains(t, failed.Error, "segfault")
}

func TestPipeline_RequiredCommandAborts(t *testing.T) {
	testCases := []struct {
		name     string
		commands func() []command.Command
		statuses []command.Status
		check    func(t *testing.T, err error)
	}{
		{
			name: "required command behind a failed requirement",
			commands: func() []command.Command {
				fetch := failing("fetch", false, errors.New("dataloader exhausted"))
				export := produce("export", true, "artifact.onnx", "x", fetch)
				return []command.Command{fetch, export, produce("after", false, "", nil)}
			},
			statuses: []command.Status{command.StatusFail, command.StatusFail},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrRequirementFailed)
			},
		},
		{
			name: "required command execution failure",
			commands: func() []command.Command {
				return []command.Command{failing("export", true, &faults.ExecutionFault{Name: "export", ExitCode: 1}), produce("after", false, "", nil)}
			},
			statuses: []command.Status{command.StatusFail},
			check: func(t *testing.T, err error) {
				_, ok := faults.AsExecution(err)
				assert.True(t, ok)
			},
		},
		{
			name: "user input error in optional command",
			commands: func() []command.Command {
				return []command.Command{failing("infer", false, faults.UserInput("scalar input")), produce("after", false, "", nil)}
			},
			statuses: []command.Status{command.StatusFail},
			check: func(t *testing.T, err error) {
				assert.True(t, faults.IsUserInput(err))
			},
		},
		{
			name: "undeclared output",
			commands: func() []command.Command {
				sneaky := command.NewFunc("sneaky", false, nil, func(context.Context, command.Namespace) (command.Output, error) {
					return command.OK(map[string]any{"surprise": 1}), nil
				})
				return []command.Command{sneaky}
			},
			statuses: []command.Status{command.StatusFail},
			check: func(t *testing.T, err error) {
				assert.True(t, faults.IsInternal(err))
				assert.ErrorContains(t, err, `undeclared output "surprise"`)
			},
		},
		{
			name: "requirement ordered after its dependent",
			commands: func() []command.Command {
				export := produce("export", true, "artifact.onnx", "x")
				convert := produce("convert", false, "artifact.trt", "y", export)
				return []command.Command{convert, export}
			},
			statuses: []command.Status{command.StatusFail},
			check: func(t *testing.T, err error) {
				assert.True(t, faults.IsInternal(err))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New("pipeline", config.Torch, tc.commands()...)
			require.NoError(t, err)

			res, err := p.Run(context.Background(), command.Namespace{}, inmemorystore.New())
			require.Error(t, err)
			var abort *AbortError
			require.ErrorAs(t, err, &abort)
			assert.Equal(t, tc.statuses, res.Statuses())
			tc.check(t, err)
		})
	}
}

func TestPipeline_MissingRequirementOutput(t *testing.T) {
	// Declares an output it never writes.
	liar := command.NewFunc("liar", false, []string{"artifact.onnx"}, func(context.Context, command.Namespace) (command.Output, error) {
		return command.OK(nil), nil
	})
	consumer := produce("consumer", false, "", nil, liar)

	p, err := New("pipeline", config.ONNX, liar, consumer)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), command.Namespace{}, inmemorystore.New())
	assert.True(t, faults.IsInternal(err))
	assert.ErrorContains(t, err, `output "artifact.onnx" is missing`)
}

func TestPipeline_VerdictFailIsRecorded(t *testing.T) {
	check := command.NewFunc("correctness", false, []string{"correctness.onnx"}, func(context.Context, command.Namespace) (command.Output, error) {
		return command.Fail(map[string]any{"correctness.onnx": "max_abs_err=3"}), nil
	})
	perf := produce("performance", false, "", nil, check)

	ns := command.Namespace{}
	p, err := New("pipeline", config.ONNX, check, perf)
	require.NoError(t, err)
	res, err := p.Run(context.Background(), ns, inmemorystore.New())
	require.NoError(t, err)

	assert.Equal(t, []command.Status{command.StatusFail, command.StatusSkipped}, res.Statuses())
	assert.Equal(t, "max_abs_err=3", res.CommandsResults[0].Output["correctness.onnx"])
	assert.False(t, ns.Has("correctness.onnx"))
}

func TestPipeline_NoopDoesNotSatisfyRequirements(t *testing.T) {
	convert := command.NewFunc("convert", false, nil, func(context.Context, command.Namespace) (command.Output, error) {
		return command.Noop(), nil
	})
	correctness := produce("correctness", false, "", nil, convert)

	p, err := New("pipeline", config.ONNX, convert, correctness)
	require.NoError(t, err)
	res, err := p.Run(context.Background(), command.Namespace{}, inmemorystore.New())
	require.NoError(t, err)
	assert.Equal(t, []command.Status{command.StatusNoop, command.StatusSkipped}, res.Statuses())
}

func TestNew_RejectsCollisions(t *testing.T) {
	_, err := New("p", config.ONNX, produce("a", false, "k", 1), produce("b", false, "k", 2))
	require.Error(t, err)
	assert.True(t, faults.IsConfiguration(err))
	assert.ErrorContains(t, err, `both declare output "k"`)

	_, err = New("p", config.ONNX, produce("a", false, "", nil), produce("a", false, "", nil))
	assert.True(t, faults.IsConfiguration(err))
}

func TestPipeline_Deterministic(t *testing.T) {
	build := func() *Pipeline {
		export := produce("export", true, "artifact.onnx", "model.onnx")
		convert := failing("convert", false, &faults.ExecutionFault{Name: "convert", ExitCode: 2}, export)
		correctness := produce("correctness", false, "correctness.onnx", true, export)
		trtCorrectness := produce("trt-correctness", false, "correctness.trt", true, convert)
		p, err := New("pipeline", config.ONNX, export, convert, correctness, trtCorrectness)
		require.NoError(t, err)
		return p
	}

	first, err := build().Run(context.Background(), command.Namespace{}, inmemorystore.New())
	require.NoError(t, err)
	second, err := build().Run(context.Background(), command.Namespace{}, inmemorystore.New())
	require.NoError(t, err)

	assert.Equal(t, first.Statuses(), second.Statuses())
	assert.Equal(t, []command.Status{
		command.StatusOK, command.StatusFail, command.StatusOK, command.StatusSkipped,
	}, first.Statuses())
}

// brokenStore refuses to record the running state of one command.
type brokenStore struct {
	statestore.Store
	command string
}

func (s *brokenStore) SetStatus(ctx context.Context, name string, status command.Status) error {
	if name == s.command && status == command.StatusRunning {
		return errors.New("state store unavailable")
	}
	return s.Store.SetStatus(ctx, name, status)
}

func TestPipeline_StoreFailureIsRecorded(t *testing.T) {
	// Arrange
	export := produce("export", true, "artifact.onnx", "ws/onnx/model.onnx")
	p, err := New("pipeline", config.ONNX, export)
	require.NoError(t, err)
	rec := &recorder{}
	p.AddObserver(rec)
	store := &brokenStore{Store: inmemorystore.New(), command: "export"}

	// Act
	res, err := p.Run(context.Background(), command.Namespace{}, store)

	// Assert
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "export", abort.Command)
	assert.Equal(t, []command.Status{command.StatusFail}, res.Statuses())
	assert.Equal(t, "state store unavailable", res.CommandsResults[0].Error)
	assert.Equal(t, []string{"finish:export:FAIL"}, rec.events)
}
