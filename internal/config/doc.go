// Package config defines the format-agnostic model of one optimization run,
// along with the Loader interface for reading it from a concrete source.
//
// `config.OptimizeConfig` is the single source of truth for the `manager`
// package. It is built and validated before any pipeline runs, so every
// constraint violation surfaces as a *faults.ConfigurationError up front.
// The HCL implementation of Loader lives in `hcl_adapter`.
package config
