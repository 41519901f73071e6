package dataloader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/gridnav/internal/tensor"
	"github.com/vmihailenco/msgpack/v5"
)

// Dump writes samples to path as a msgpack document, creating parent
// directories as needed.
func Dump(path string, samples []tensor.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	data, err := msgpack.Marshal(samples)
	if err != nil {
		return fmt.Errorf("failed to encode samples: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write samples to %s: %w", path, err)
	}
	return nil
}

// Load reads samples written by Dump.
func Load(path string) ([]tensor.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples from %s: %w", path, err)
	}
	var samples []tensor.Sample
	if err := msgpack.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("failed to decode samples from %s: %w", path, err)
	}
	return samples, nil
}

// FromFile loads a dump into a sized source.
func FromFile(path string) (*SliceSource, error) {
	samples, err := Load(path)
	if err != nil {
		return nil, err
	}
	return FromSlice(samples...), nil
}
