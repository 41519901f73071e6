// Package app contains the core application logic. It wires the loaded
// optimize config, the tool templates and the observers into a manager and
// owns the lifecycle of a run, decoupled from any specific entrypoint like a
// CLI or server.
package app
