// Package manager composes the commands of an optimize run into pipelines,
// verifies the plan and runs it.
package manager

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/commands"
	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/execctx"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/inmemorystore"
	"github.com/specialistvlad/gridnav/internal/pipeline"
	"github.com/specialistvlad/gridnav/internal/statestore"
	"github.com/specialistvlad/gridnav/internal/status"
	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/specialistvlad/gridnav/internal/tooling"
)

// Report is the outcome of one optimize run.
type Report struct {
	RunID     string
	Pipelines []pipeline.Results
	// Best is the variant with the highest measured throughput among those
	// whose correctness check passed, nil when there is none.
	Best *commands.Variant
	// BestMeasurement is the measurement Best was picked on.
	BestMeasurement commands.Measurement
}

// Manager owns the commands of one optimize run.
type Manager struct {
	env       *commands.Env
	store     statestore.Store
	observers []pipeline.Observer
	newRunID  func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithObservers registers observers on every pipeline of the run.
func WithObservers(observers ...pipeline.Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, observers...) }
}

// WithStore replaces the in-memory command state store.
func WithStore(s statestore.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithRunID fixes the run identifier instead of generating a UUID.
func WithRunID(id string) Option {
	return func(m *Manager) { m.newRunID = func() string { return id } }
}

// WithClock replaces the clock used for timestamps and measurements.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.env.Now = now }
}

// New validates cfg and prepares a run. src may be nil when the run reloads
// a previous workspace.
func New(cfg *config.OptimizeConfig, toolkit tooling.Toolkit, exec *execctx.Context, src dataloader.Source, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FromSource && src == nil {
		return nil, faults.Configuration("a data source is required when optimizing from source")
	}
	m := &Manager{
		env: &commands.Env{
			Config:  cfg,
			Toolkit: toolkit,
			Exec:    exec,
			Source:  src,
		},
		store:    inmemorystore.New(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Pipelines builds and verifies the pipelines of the run without running
// them.
func (m *Manager) Pipelines() ([]*pipeline.Pipeline, error) {
	pipelines, err := Build(m.env)
	if err != nil {
		return nil, err
	}
	if err := Verify(pipelines); err != nil {
		return nil, err
	}
	return pipelines, nil
}

// Optimize runs every pipeline in order over one namespace and writes
// status.yaml to the workspace. An abort stops the run; the report then holds
// the pipelines that ran and the error is a *pipeline.AbortError.
func (m *Manager) Optimize(ctx context.Context) (*Report, error) {
	cfg := m.env.Config
	report := &Report{RunID: m.newRunID()}
	logger := ctxlog.FromContext(ctx).With("run_id", report.RunID)
	ctx = ctxlog.WithLogger(ctx, logger)

	pipelines, err := m.Pipelines()
	if err != nil {
		return nil, err
	}
	logger.Info("▶️ Starting optimization", "framework", cfg.Framework, "pipelines", len(pipelines), "workspace", m.env.Exec.Workspace())

	ns := command.Namespace{}
	var runErr error
	for _, p := range pipelines {
		p.AddObserver(m.observers...)
		res, err := p.Run(ctx, ns, m.store)
		report.Pipelines = append(report.Pipelines, res)
		if err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil {
		report.Best, report.BestMeasurement = pickBest(pipelines, ns)
	}
	if err := m.saveStatus(report, ns); err != nil {
		return report, errors.Join(runErr, err)
	}
	if runErr != nil {
		return report, runErr
	}

	if report.Best != nil {
		logger.Info("✅ Finished optimization", "best", report.Best.String(),
			"throughput", report.BestMeasurement.Throughput, "batch_size", report.BestMeasurement.BatchSize)
	} else {
		logger.Warn("✅ Finished optimization, no variant passed both correctness and performance checks.")
	}
	return report, nil
}

// pickBest returns the performance-checked variant with the highest
// throughput whose correctness check passed.
func pickBest(pipelines []*pipeline.Pipeline, ns command.Namespace) (*commands.Variant, commands.Measurement) {
	var (
		best *commands.Variant
		top  commands.Measurement
	)
	for _, p := range pipelines {
		for _, cmd := range p.Commands() {
			perf, ok := cmd.(*commands.Performance)
			if !ok {
				continue
			}
			v := perf.Variant()
			if !ns.Has(commands.CorrectnessKey(v)) {
				continue
			}
			r, err := command.Lookup[commands.PerformanceReport](ns, commands.PerformanceKey(v))
			if err != nil {
				continue
			}
			m, ok := r.Best()
			if !ok || (best != nil && m.Throughput <= top.Throughput) {
				continue
			}
			best, top = &v, m
		}
	}
	return best, top
}

func (m *Manager) saveStatus(report *Report, ns command.Namespace) error {
	cfg := m.env.Config
	ws := m.env.Exec.Workspace()
	st := &status.Status{
		RunID:     report.RunID,
		Timestamp: m.now().UTC(),
		Framework: cfg.Framework,
		ModelPath: cfg.ModelPath,
		Pipelines: report.Pipelines,
	}
	st.InputMetadata, _ = command.LookupOr[*tensor.Metadata](ns, commands.KeyInputMetadata, nil)
	st.OutputMetadata, _ = command.LookupOr[*tensor.Metadata](ns, commands.KeyOutputMetadata, nil)
	st.TRTProfile, _ = command.LookupOr[*tensor.Profile](ns, commands.KeyTRTProfile, nil)
	st.MaxBatchSize, _ = command.LookupOr(ns, commands.KeyMaxBatchSize, 0)

	base := commands.Variant{Format: config.BaseFormat(cfg.Framework)}
	if artifact, _ := command.LookupOr(ns, commands.ArtifactKey(base), ""); artifact != "" {
		if rel, err := filepath.Rel(ws, artifact); err == nil {
			st.BaseArtifact = filepath.ToSlash(rel)
		}
	}
	if report.Best != nil {
		st.Best = report.Best.String()
	}
	return status.Save(ws, st)
}

func (m *Manager) now() time.Time {
	if m.env.Now != nil {
		return m.env.Now()
	}
	return time.Now()
}
