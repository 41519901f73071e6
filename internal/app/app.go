package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/gridnav/internal/config"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/specialistvlad/gridnav/internal/metrics"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	ctx      context.Context
	config   *Config
	optimize *config.OptimizeConfig
	recorder *metrics.Recorder

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It builds an isolated
// logger, loads the optimize config through loader and applies the
// overrides of cfg.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	optimize, err := loader.Load(ctx, cfg.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Workspace != "" {
		optimize.Workspace = cfg.Workspace
	}
	if cfg.Timeout > 0 {
		optimize.Timeout = cfg.Timeout
	}
	optimize.Verbose = optimize.Verbose || cfg.Verbose
	if err := optimize.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.", "framework", optimize.Framework, "workspace", optimize.Workspace)

	return &App{
		outW:     outW,
		ctx:      ctx,
		config:   cfg,
		optimize: optimize,
		recorder: metrics.NewRecorder(),
	}, nil
}

// OptimizeConfig returns the loaded and overridden optimize config. This is
// primarily for testing.
func (app *App) OptimizeConfig() *config.OptimizeConfig {
	return app.optimize
}

// Logger returns the application logger.
func (app *App) Logger() *slog.Logger {
	return ctxlog.FromContext(app.ctx)
}
