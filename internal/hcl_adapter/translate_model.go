package hcl_adapter

import (
	"context"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/zclconf/go-cty/cty/gocty"
)

// translateOptimize converts the decoded `optimize` block into the
// format-agnostic config, applying defaults for every omitted attribute.
func (l *Loader) translateOptimize(ctx context.Context, o *Optimize, evalCtx *hcl.EvalContext) (*config.OptimizeConfig, error) {
	cfg := config.Default()

	framework, err := config.ParseFramework(o.Framework)
	if err != nil {
		return nil, err
	}
	cfg.Framework = framework
	cfg.ModelPath = o.Model
	cfg.DataPath = o.Data
	if o.Workspace != "" {
		cfg.Workspace = o.Workspace
	}
	for _, s := range o.TargetFormats {
		f, err := config.ParseFormat(s)
		if err != nil {
			return nil, err
		}
		cfg.TargetFormats = append(cfg.TargetFormats, f)
	}
	cfg.InputNames = o.InputNames
	cfg.OutputNames = o.OutputNames
	cfg.DynamicAxes = o.DynamicAxes

	batchDim, err := translateBatchDim(ctx, o.BatchDim, evalCtx)
	if err != nil {
		return nil, err
	}
	if batchDim.set {
		cfg.BatchDim = batchDim.value
	}

	if o.SampleCount != nil {
		cfg.SampleCount = *o.SampleCount
	}
	if o.FromSource != nil {
		cfg.FromSource = *o.FromSource
	}
	cfg.Inplace = o.Inplace
	cfg.Verbose = o.Verbose
	if o.Atol != nil {
		cfg.Atol = *o.Atol
	}
	if o.Rtol != nil {
		cfg.Rtol = *o.Rtol
	}
	if cfg.Timeout, err = parseDuration("timeout", o.Timeout); err != nil {
		return nil, err
	}

	translateProfile(o.Profile, &cfg.Profile)

	if o.TensorFlow != nil {
		cfg.CustomConfigs = append(cfg.CustomConfigs, &config.TensorFlowConfig{JitCompile: o.TensorFlow.JitCompile})
	}
	if o.Torch != nil {
		c := config.NewTorchConfig()
		if o.Torch.Strict != nil {
			c.Strict = *o.Torch.Strict
		}
		if len(o.Torch.JitType) > 0 {
			c.JitType = c.JitType[:0]
			for _, j := range o.Torch.JitType {
				c.JitType = append(c.JitType, config.JitType(j))
			}
		}
		cfg.CustomConfigs = append(cfg.CustomConfigs, c)
	}
	if o.Onnx != nil {
		c := config.NewOnnxConfig()
		if o.Onnx.Opset != nil {
			c.Opset = *o.Onnx.Opset
		}
		if len(o.Onnx.Runtimes) > 0 {
			c.Runtimes = c.Runtimes[:0]
			for _, s := range o.Onnx.Runtimes {
				r, err := config.ParseRuntime(s)
				if err != nil {
					return nil, err
				}
				c.Runtimes = append(c.Runtimes, r)
			}
		}
		cfg.CustomConfigs = append(cfg.CustomConfigs, c)
	}
	if o.TensorRT != nil {
		c := config.NewTensorRTConfig()
		if err := translateTensorRT(o.TensorRT, &c.TensorRTOptions); err != nil {
			return nil, err
		}
		c.OptimizationLevel = o.TensorRT.OptimizationLevel
		cfg.CustomConfigs = append(cfg.CustomConfigs, c)
	}
	if o.TFTRT != nil {
		c := config.NewTensorFlowTensorRTConfig()
		if err := translateTensorRT(o.TFTRT, &c.TensorRTOptions); err != nil {
			return nil, err
		}
		if o.TFTRT.MinimumSegmentSize != nil {
			c.MinimumSegmentSize = *o.TFTRT.MinimumSegmentSize
		}
		cfg.CustomConfigs = append(cfg.CustomConfigs, c)
	}
	if o.TorchTRT != nil {
		c := config.NewTorchTensorRTConfig()
		if err := translateTensorRT(o.TorchTRT, &c.TensorRTOptions); err != nil {
			return nil, err
		}
		cfg.CustomConfigs = append(cfg.CustomConfigs, c)
	}

	return cfg, nil
}

type optionalInt struct {
	set   bool
	value *int
}

// translateBatchDim distinguishes an omitted `batch_dim` (keep the default
// axis 0) from `batch_dim = null` (the model has no batch axis).
func translateBatchDim(ctx context.Context, expr hcl.Expression, evalCtx *hcl.EvalContext) (optionalInt, error) {
	if !isExprDefined(ctx, expr, "batch_dim") {
		return optionalInt{}, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return optionalInt{}, faults.Configuration("failed to evaluate `batch_dim`: %v", diags)
	}
	if val.IsNull() {
		return optionalInt{set: true}, nil
	}
	var dim int
	if err := gocty.FromCtyValue(val, &dim); err != nil {
		return optionalInt{}, faults.Configuration("`batch_dim` must be a whole number or null: %v", err)
	}
	return optionalInt{set: true, value: &dim}, nil
}

func translateProfile(p *Profile, dst *config.OptimizationProfile) {
	if p == nil {
		return
	}
	setIf(&dst.MaxBatchSize, p.MaxBatchSize)
	if len(p.BatchSizes) > 0 {
		dst.BatchSizes = p.BatchSizes
	}
	setIf(&dst.WindowSize, p.WindowSize)
	setIf(&dst.StabilityPercentage, p.StabilityPercentage)
	setIf(&dst.StabilizationWindows, p.StabilizationWindows)
	setIf(&dst.MinTrials, p.MinTrials)
	setIf(&dst.MaxTrials, p.MaxTrials)
	setIf(&dst.ThroughputCutoffThreshold, p.ThroughputCutoffThreshold)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func translateTensorRT(src *TensorRT, dst *config.TensorRTOptions) error {
	if len(src.Precision) > 0 {
		dst.Precision = dst.Precision[:0]
		for _, s := range src.Precision {
			p, err := config.ParsePrecision(s)
			if err != nil {
				return err
			}
			dst.Precision = append(dst.Precision, p)
		}
	}
	if src.PrecisionMode != "" {
		mode, err := config.ParsePrecisionMode(src.PrecisionMode)
		if err != nil {
			return err
		}
		dst.PrecisionMode = mode
	}
	setIf(&dst.MaxWorkspaceSize, src.MaxWorkspaceSize)
	if src.TRTProfile != nil {
		dst.TRTProfile = translateShapeProfile(src.TRTProfile)
	}
	for _, p := range src.TRTProfiles {
		dst.TRTProfiles = append(dst.TRTProfiles, translateShapeProfile(p))
	}
	return nil
}

func translateShapeProfile(sp *ShapeProfile) *tensor.Profile {
	profile := &tensor.Profile{}
	for _, in := range sp.Inputs {
		profile.Add(in.Name, tensor.Shape(in.Min), tensor.Shape(in.Opt), tensor.Shape(in.Max))
	}
	return profile
}

func translateTool(t *Tool) (*config.Tool, error) {
	timeout, err := parseDuration("tool "+t.Name+" timeout", t.Timeout)
	if err != nil {
		return nil, err
	}
	return &config.Tool{
		Name:    t.Name,
		Kind:    config.ToolKind(t.Kind),
		Format:  config.Format(t.Format),
		Command: t.Command,
		Env:     t.Env,
		Timeout: timeout,
	}, nil
}

func parseDuration(attr, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, faults.Configuration("invalid `%s` %q: %v", attr, s, err)
	}
	if d < 0 {
		return 0, faults.Configuration("`%s` must not be negative, got %s", attr, s)
	}
	return d, nil
}
