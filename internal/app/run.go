package app

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/dataloader"
	"github.com/specialistvlad/gridnav/internal/events"
	"github.com/specialistvlad/gridnav/internal/execctx"
	"github.com/specialistvlad/gridnav/internal/faults"
	"github.com/specialistvlad/gridnav/internal/manager"
	"github.com/specialistvlad/gridnav/internal/pipeline"
	"github.com/specialistvlad/gridnav/internal/tooling"
)

// Run executes one optimize run and returns its report. The report is
// non-nil whenever the pipelines started, even if the run aborted.
func (app *App) Run(ctx context.Context) (report *manager.Report, err error) {
	logger := ctxlog.FromContext(app.ctx)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("App.Run method started.")

	app.startServer()
	defer func() {
		err = errors.Join(err, app.closeServer())
	}()

	cfg := app.optimize
	runID := uuid.NewString()

	var src dataloader.Source
	if cfg.FromSource {
		samples, err := dataloader.FromFile(cfg.DataPath)
		if err != nil {
			return nil, faults.UserInput("failed to load data samples: %v", err)
		}
		src = samples
		logger.Debug("Data samples loaded.", "path", cfg.DataPath, "count", len(samples.Samples()))
	}

	exec := execctx.New(cfg.Workspace, execctx.WithVerbose(cfg.Verbose), execctx.WithTimeout(cfg.Timeout))
	toolkit, err := tooling.NewTemplates(cfg.Tools, exec)
	if err != nil {
		return nil, err
	}

	observers := []pipeline.Observer{app.recorder}
	if app.config.EventsURL != "" {
		pub, err := events.Connect(ctx, runID, events.Options{
			URL:                app.config.EventsURL,
			Namespace:          app.config.EventsNamespace,
			InsecureSkipVerify: app.config.EventsInsecure,
		})
		if err != nil {
			return nil, err
		}
		defer pub.Close()
		observers = append(observers, pub)
	}

	mgr, err := manager.New(cfg, toolkit, exec, src,
		manager.WithRunID(runID),
		manager.WithObservers(observers...),
	)
	if err != nil {
		return nil, err
	}

	report, err = mgr.Optimize(ctx)
	if report != nil {
		for _, res := range report.Pipelines {
			logger.Info("🏁 Pipeline finished", "pipeline", res.Name, "commands", len(res.CommandsResults))
		}
	}
	logger.Debug("App.Run method finished.")
	return report, err
}
