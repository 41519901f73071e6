package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPaths []string // hcl files or directories

	// Workspace, Timeout and Verbose override the values of the loaded
	// optimize config when set.
	Workspace string
	Timeout   time.Duration
	Verbose   bool

	LogFormat   string
	LogLevel    string
	MetricsPort int

	EventsURL       string
	EventsNamespace string
	EventsInsecure  bool
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 {
		return nil, errors.New("at least one configuration path is required")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("timeout cannot be negative")
	}
	if cfg.EventsNamespace == "" {
		cfg.EventsNamespace = "/"
	}
	return &cfg, nil
}
