package manager

import (
	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/commands"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/pipeline"
)

// PreprocessingPipeline is the name of the pipeline every run starts with.
const PreprocessingPipeline = "Preprocessing pipeline"

var pipelineNames = map[config.Format]string{
	config.FormatTFSavedModel: "SavedModel pipeline",
	config.FormatTFTRT:        "TF-TRT pipeline",
	config.FormatTorchScript:  "TorchScript pipeline",
	config.FormatTorchTRT:     "Torch-TensorRT pipeline",
	config.FormatONNX:         "ONNX pipeline",
	config.FormatTensorRT:     "TensorRT pipeline",
}

// stage holds the producers later pipelines depend on.
type stage struct {
	// prepared are the commands after which the base artifact and the
	// conversion samples exist.
	prepared []command.Command
	// data are the commands providing samples, reference outputs and
	// metadata to evaluation commands.
	data []command.Command
	// artifacts maps an artifact variant to the command that produces it.
	artifacts map[commands.Variant]command.Command
}

type plan struct {
	name string
	cmds []command.Command
}

// Build turns the config into pipelines, in run order. The composition is a
// fixed table over framework and requested formats; every requirement edge
// is stated explicitly:
//
//   - preprocessing: metadata inference, sample capture and export when
//     optimizing from source, otherwise metadata and samples reloaded from the
//     workspace. Export and every conversion read the dumped input samples;
//   - the base format: evaluation of the exported model;
//   - onnx: conversion from the base format, evaluated on every runtime. A
//     TensorRT target implies it, built once;
//   - tensorrt: one ONNX to TensorRT conversion per precision;
//   - tf-trt and torch-trt: one conversion from the base format per precision.
func Build(env *commands.Env) ([]*pipeline.Pipeline, error) {
	cfg := env.Config
	base := commands.Variant{Format: config.BaseFormat(cfg.Framework)}

	st := stage{artifacts: map[commands.Variant]command.Command{}}
	pre := preprocessing(env, base, &st)

	plans := []plan{{PreprocessingPipeline, pre}}
	add := func(f config.Format, cmds []command.Command) {
		plans = append(plans, plan{pipelineNames[f], cmds})
	}

	if wants(cfg, base.Format) {
		add(base.Format, evaluate(env, st.artifacts[base], base.Format, st.data))
	}

	onnx := commands.Variant{Format: config.FormatONNX}
	if base.Format != config.FormatONNX && wants(cfg, config.FormatONNX) {
		convert := commands.NewConvert(env, base, onnx, st.prepared...)
		st.artifacts[onnx] = convert
		add(config.FormatONNX, append([]command.Command{convert}, evaluate(env, convert, config.FormatONNX, st.data)...))
	}

	if cfg.Wants(config.FormatTensorRT) {
		add(config.FormatTensorRT, compiled(env, onnx, st.artifacts[onnx], config.FormatTensorRT, st.data, st.prepared...))
	}
	for _, f := range []config.Format{config.FormatTFTRT, config.FormatTorchTRT} {
		if !cfg.Wants(f) {
			continue
		}
		// Compiled from the base artifact, so preprocessing must be done.
		add(f, compiled(env, base, nil, f, st.data, st.prepared...))
	}

	out := make([]*pipeline.Pipeline, 0, len(plans))
	for _, pl := range plans {
		p, err := pipeline.New(pl.name, cfg.Framework, pl.cmds...)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// wants reports whether a format gets a pipeline. ONNX is implied by
// TensorRT, which is compiled from it.
func wants(cfg *config.OptimizeConfig, f config.Format) bool {
	return cfg.Wants(f) || (f == config.FormatONNX && cfg.Wants(config.FormatTensorRT))
}

func preprocessing(env *commands.Env, base commands.Variant, st *stage) []command.Command {
	if !env.Config.FromSource {
		loadMetadata := commands.NewLoadMetadata(env)
		loadSamples := commands.NewLoadSamples(env, loadMetadata)
		st.prepared = []command.Command{loadMetadata, loadSamples}
		st.data = st.prepared
		st.artifacts[base] = loadMetadata
		return []command.Command{loadMetadata, loadSamples}
	}

	inferInput := commands.NewInferInputMetadata(env)
	fetch := commands.NewFetchInputModelData(env, inferInput)
	inferOutput := commands.NewInferOutputMetadata(env, inferInput, fetch)
	dumpInput := commands.NewDumpInputModelData(env, inferInput, fetch)
	dumpOutput := commands.NewDumpOutputModelData(env, fetch, inferOutput)
	export := commands.NewExport(env, inferInput, fetch, inferOutput, dumpInput)

	st.prepared = []command.Command{export, dumpInput}
	st.data = []command.Command{inferInput, fetch, inferOutput}
	st.artifacts[base] = export
	return []command.Command{inferInput, fetch, inferOutput, dumpInput, dumpOutput, export}
}

// variants lists what an artifact of format f is evaluated as: one variant
// per ONNX runtime, one per precision for compiled formats.
func variants(cfg *config.OptimizeConfig, f config.Format) []commands.Variant {
	switch f {
	case config.FormatONNX:
		var out []commands.Variant
		for _, rt := range cfg.Onnx().Runtimes {
			out = append(out, commands.Variant{Format: f, Runtime: rt})
		}
		return out
	case config.FormatTensorRT, config.FormatTFTRT, config.FormatTorchTRT:
		var out []commands.Variant
		for _, p := range cfg.TensorRTOptionsFor(f).Precision {
			out = append(out, commands.Variant{Format: f, Precision: p})
		}
		return out
	}
	return []commands.Variant{{Format: f}}
}

// evaluate returns the correctness, performance and config commands of an
// uncompiled artifact.
func evaluate(env *commands.Env, producer command.Command, f config.Format, data []command.Command) []command.Command {
	requires := distinct(append([]command.Command{producer}, data...))
	var out []command.Command
	for _, v := range variants(env.Config, f) {
		out = append(out,
			commands.NewCorrectness(env, v, requires...),
			commands.NewPerformance(env, v, requires...),
		)
	}
	return append(out, commands.NewConfigCli(env, commands.Variant{Format: f}, requires...))
}

// compiled returns, per precision, the conversion of from into f followed by
// the evaluation of the result. convertRequires are added to the producer of
// from as conversion requirements.
func compiled(env *commands.Env, from commands.Variant, producer command.Command, f config.Format, data []command.Command, convertRequires ...command.Command) []command.Command {
	var reqs []command.Command
	if producer != nil {
		reqs = append(reqs, producer)
	}
	convertRequires = distinct(append(reqs, convertRequires...))
	var out []command.Command
	for _, v := range variants(env.Config, f) {
		convert := commands.NewConvert(env, from, v, convertRequires...)
		requires := distinct(append([]command.Command{convert}, data...))
		out = append(out,
			convert,
			commands.NewCorrectness(env, v, requires...),
			commands.NewPerformance(env, v, requires...),
			commands.NewConfigCli(env, v, requires...),
		)
	}
	return out
}

// distinct drops repeated commands, keeping the first occurrence.
func distinct(cmds []command.Command) []command.Command {
	seen := make(map[string]struct{}, len(cmds))
	out := cmds[:0]
	for _, c := range cmds {
		if _, ok := seen[c.Name()]; ok {
			continue
		}
		seen[c.Name()] = struct{}{}
		out = append(out, c)
	}
	return out
}
