// Package inmemorystore provides a thread-safe, in-memory implementation of
// statestore.Store, used for every optimize run since command state is not
// meant to outlive the run.
package inmemorystore
