package config

import (
	"testing"

	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *OptimizeConfig {
	c := Default()
	c.ModelPath = "model.onnx"
	c.DataPath = "samples.msgpack"
	return c
}

func intp(v int) *int { return &v }

func TestTensorRTConfig_OptimizationLevel(t *testing.T) {
	for _, level := range []int{6, -1} {
		c := NewTensorRTConfig()
		c.OptimizationLevel = intp(level)
		err := c.Validate()
		require.Error(t, err)
		assert.True(t, faults.IsConfiguration(err))
	}

	c := NewTensorRTConfig()
	c.OptimizationLevel = intp(6)
	assert.EqualError(t, c.Validate(), "TensorRT `optimization_level` must be between 0 and 5. Provided value: 6.")

	c.OptimizationLevel = intp(2)
	assert.NoError(t, c.Validate())
}

func TestTensorRTOptions_ProfileExclusivity(t *testing.T) {
	profile := (&tensor.Profile{}).Add("x", tensor.Shape{1}, tensor.Shape{2}, tensor.Shape{4})

	configs := []CustomConfig{NewTensorRTConfig(), NewTensorFlowTensorRTConfig(), NewTorchTensorRTConfig()}
	for _, c := range configs {
		t.Run(c.Name(), func(t *testing.T) {
			opts := (&OptimizeConfig{CustomConfigs: []CustomConfig{c}}).TensorRTOptionsFor(c.Format())
			require.NotNil(t, opts)

			opts.TRTProfile = profile
			require.NoError(t, c.Validate())
			assert.Equal(t, []*tensor.Profile{profile}, opts.Profiles())

			opts.TRTProfiles = []*tensor.Profile{profile}
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, faults.IsConfiguration(err))

			opts.TRTProfile = nil
			require.NoError(t, c.Validate())
			assert.Equal(t, []*tensor.Profile{profile}, opts.Profiles())
		})
	}
}

func TestCustomConfig_NamesAndFormats(t *testing.T) {
	testCases := []struct {
		config CustomConfig
		name   string
		format Format
	}{
		{&TensorFlowConfig{}, "TensorFlow", FormatTFSavedModel},
		{NewTensorFlowTensorRTConfig(), "TensorFlowTensorRT", FormatTFTRT},
		{NewTorchConfig(), "Torch", FormatTorchScript},
		{NewTorchTensorRTConfig(), "TorchTensorRT", FormatTorchTRT},
		{NewOnnxConfig(), "Onnx", FormatONNX},
		{NewTensorRTConfig(), "TensorRT", FormatTensorRT},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.name, tc.config.Name())
		assert.Equal(t, tc.format, tc.config.Format())
		assert.Equal(t, tc.config, DefaultCustomConfig(tc.format))
	}
}

func TestCustomConfig_DefaultsResetValues(t *testing.T) {
	trt := NewTensorRTConfig()
	trt.Precision = []Precision{FP32}
	trt.PrecisionMode = PrecisionModeMixed
	trt.Defaults()
	assert.Equal(t, DefaultPrecisions, trt.Precision)
	assert.Equal(t, DefaultPrecisionMode, trt.PrecisionMode)

	torchTRT := NewTorchTensorRTConfig()
	torchTRT.Precision = []Precision{FP32}
	torchTRT.PrecisionMode = PrecisionModeMixed
	torchTRT.Defaults()
	assert.Equal(t, DefaultPrecisions, torchTRT.Precision)
	assert.Equal(t, DefaultPrecisionMode, torchTRT.PrecisionMode)

	tftrt := NewTensorFlowTensorRTConfig()
	tftrt.Precision = []Precision{FP32}
	tftrt.Defaults()
	assert.Equal(t, DefaultPrecisions, tftrt.Precision)

	torch := NewTorchConfig()
	assert.True(t, torch.Strict)
	torch.Strict = false
	torch.JitType = []JitType{JitTrace}
	torch.Defaults()
	assert.True(t, torch.Strict)
	assert.Equal(t, []JitType{JitScript, JitTrace}, torch.JitType)
}

func TestMapCustomConfigs(t *testing.T) {
	m, err := MapCustomConfigs(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	trt, torchTRT := NewTensorRTConfig(), NewTorchTensorRTConfig()
	m, err = MapCustomConfigs([]CustomConfig{trt, torchTRT})
	require.NoError(t, err)
	assert.Same(t, trt, m[FormatTensorRT])
	assert.Same(t, torchTRT, m[FormatTorchTRT])

	_, err = MapCustomConfigs([]CustomConfig{NewTensorRTConfig(), NewTensorRTConfig()})
	assert.True(t, faults.IsConfiguration(err))
}

func TestOptimizationProfile_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(p *OptimizationProfile)
		wantErr string
	}{
		{"defaults are valid", func(p *OptimizationProfile) {}, ""},
		{"window size", func(p *OptimizationProfile) { p.WindowSize = 0 }, "`window_size` must be greater or equal 1."},
		{"stabilization windows", func(p *OptimizationProfile) { p.StabilizationWindows = 0 }, "`stabilization_windows` must be greater or equal 1."},
		{"min trials", func(p *OptimizationProfile) { p.MinTrials = 0 }, "`min_trials` must be greater or equal 1."},
		{"max trials", func(p *OptimizationProfile) { p.MaxTrials = 0 }, "`max_trials` must be greater or equal 1."},
		{"stability percentage", func(p *OptimizationProfile) { p.StabilityPercentage = 0 }, "`stability_percentage` must be greater than 0.0."},
		{"min trials below stabilization windows", func(p *OptimizationProfile) {
			p.StabilizationWindows, p.MinTrials = 2, 1
		}, "`min_trials` must be greater or equal than `stabilization_windows`."},
		{"max trials below min trials", func(p *OptimizationProfile) {
			p.MaxTrials, p.MinTrials, p.StabilizationWindows = 1, 2, 1
		}, "`max_trials` must be greater or equal `min_trials`."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultOptimizationProfile()
			tc.mutate(&p)
			err := p.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, faults.IsConfiguration(err))
			assert.EqualError(t, err, tc.wantErr)
		})
	}
}

func TestOptimizeConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	testCases := []struct {
		name    string
		mutate  func(c *OptimizeConfig)
		wantErr string
	}{
		{"unknown framework", func(c *OptimizeConfig) { c.Framework = "jax" }, `unknown framework "jax"`},
		{"missing model", func(c *OptimizeConfig) { c.ModelPath = "" }, "`model` path must be set."},
		{"missing data from source", func(c *OptimizeConfig) { c.DataPath = "" }, "`data` path must be set"},
		{"unreachable format", func(c *OptimizeConfig) { c.TargetFormats = []Format{FormatTorchScript} }, "cannot be produced from a onnx model"},
		{"unknown format", func(c *OptimizeConfig) { c.TargetFormats = []Format{"keras"} }, `unknown format "keras"`},
		{"duplicated custom config", func(c *OptimizeConfig) {
			c.CustomConfigs = []CustomConfig{NewTensorRTConfig(), NewTensorRTConfig()}
		}, "defined more than once"},
		{"bad profile", func(c *OptimizeConfig) { c.Profile.WindowSize = 0 }, "`window_size`"},
		{"bad tool kind", func(c *OptimizeConfig) {
			c.Tools = []*Tool{{Name: "x", Kind: "bench", Format: FormatONNX, Command: []string{"x"}}}
		}, "unknown kind"},
		{"negative batch dim", func(c *OptimizeConfig) { c.BatchDim = intp(-1) }, "`batch_dim`"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, faults.IsConfiguration(err))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	t.Run("loading from workspace needs no data", func(t *testing.T) {
		c := validConfig()
		c.FromSource = false
		c.DataPath = ""
		assert.NoError(t, c.Validate())
	})
}

func TestOptimizeConfig_Targets(t *testing.T) {
	c := validConfig()
	c.Framework = Torch
	assert.Equal(t, []Format{FormatTorchScript, FormatTorchTRT, FormatONNX, FormatTensorRT}, c.Targets())
	assert.True(t, c.Wants(FormatTensorRT))

	c.TargetFormats = []Format{FormatTensorRT}
	assert.False(t, c.Wants(FormatONNX))
	assert.Equal(t, DefaultPrecisions, c.TensorRT().Precision)
}
