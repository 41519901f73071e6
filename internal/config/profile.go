package config

import "github.com/specialistvlad/gridnav/internal/faults"

// OptimizationProfile controls performance measurement. Each trial measures
// WindowSize inferences; measurement stops once StabilizationWindows
// consecutive trials agree within StabilityPercentage, or after MaxTrials.
type OptimizationProfile struct {
	// MaxBatchSize caps the batch sizes measured. Zero means the largest
	// batch observed in the data source.
	MaxBatchSize int
	// BatchSizes lists explicit batch sizes. Empty means powers of two up to
	// MaxBatchSize.
	BatchSizes                []int
	WindowSize                int
	StabilityPercentage       float64
	StabilizationWindows      int
	MinTrials                 int
	MaxTrials                 int
	ThroughputCutoffThreshold float64
}

// DefaultOptimizationProfile returns the profile used when none is given.
func DefaultOptimizationProfile() OptimizationProfile {
	return OptimizationProfile{
		WindowSize:                50,
		StabilityPercentage:       10.0,
		StabilizationWindows:      3,
		MinTrials:                 3,
		MaxTrials:                 10,
		ThroughputCutoffThreshold: 0.05,
	}
}

// Validate checks the measurement bounds.
func (p OptimizationProfile) Validate() error {
	switch {
	case p.WindowSize < 1:
		return faults.Configuration("`window_size` must be greater or equal 1.")
	case p.StabilizationWindows < 1:
		return faults.Configuration("`stabilization_windows` must be greater or equal 1.")
	case p.MinTrials < 1:
		return faults.Configuration("`min_trials` must be greater or equal 1.")
	case p.MaxTrials < 1:
		return faults.Configuration("`max_trials` must be greater or equal 1.")
	case p.StabilityPercentage <= 0:
		return faults.Configuration("`stability_percentage` must be greater than 0.0.")
	case p.MinTrials < p.StabilizationWindows:
		return faults.Configuration("`min_trials` must be greater or equal than `stabilization_windows`.")
	case p.MaxTrials < p.MinTrials:
		return faults.Configuration("`max_trials` must be greater or equal `min_trials`.")
	case p.MaxBatchSize < 0:
		return faults.Configuration("`max_batch_size` must be greater or equal 0.")
	}
	for _, bs := range p.BatchSizes {
		if bs < 1 {
			return faults.Configuration("`batch_sizes` must contain values greater or equal 1. Provided value: %d.", bs)
		}
	}
	return nil
}
