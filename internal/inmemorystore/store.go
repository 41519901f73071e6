package inmemorystore

import (
	"context"
	"maps"
	"sync"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/statestore"
)

// Store keeps command state in three independent sync.Maps keyed by
// command name.
type Store struct {
	states  sync.Map // command.Status
	outputs sync.Map // map[string]any
	errors  sync.Map // error
}

// New creates an empty store.
func New() statestore.Store {
	return &Store{}
}

func (s *Store) SetStatus(ctx context.Context, name string, status command.Status) error {
	s.states.Store(name, status)
	return nil
}

// GetStatus returns StatusPending for commands that never reported.
func (s *Store) GetStatus(ctx context.Context, name string) (command.Status, error) {
	status, ok := s.states.Load(name)
	if !ok {
		return command.StatusPending, nil
	}
	return status.(command.Status), nil
}

// SetOutput stores a copy of values so later namespace writes by the caller
// cannot change what was recorded.
func (s *Store) SetOutput(ctx context.Context, name string, values map[string]any) error {
	s.outputs.Store(name, maps.Clone(values))
	return nil
}

func (s *Store) GetOutput(ctx context.Context, name string) (map[string]any, error) {
	values, ok := s.outputs.Load(name)
	if !ok {
		return nil, nil
	}
	return maps.Clone(values.(map[string]any)), nil
}

func (s *Store) SetError(ctx context.Context, name string, cmdErr error) error {
	s.errors.Store(name, cmdErr)
	return nil
}

func (s *Store) GetError(ctx context.Context, name string) (error, error) {
	err, ok := s.errors.Load(name)
	if !ok {
		return nil, nil
	}
	return err.(error), nil
}
