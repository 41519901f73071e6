package command

import (
	"maps"
	"slices"

	"github.com/specialistvlad/gridnav/internal/faults"
)

// Namespace is the keyword context threaded through a run. The manager
// seeds it with run parameters and each OK command merges its declared
// outputs into it.
type Namespace map[string]any

// Has reports whether key is present.
func (ns Namespace) Has(key string) bool {
	_, ok := ns[key]
	return ok
}

// Merge copies values into the namespace, overwriting existing keys.
func (ns Namespace) Merge(values map[string]any) {
	maps.Copy(ns, values)
}

// Clone returns a shallow copy.
func (ns Namespace) Clone() Namespace {
	return maps.Clone(ns)
}

// Keys returns the sorted key set.
func (ns Namespace) Keys() []string {
	return slices.Sorted(maps.Keys(ns))
}

// Lookup returns the value of key as T. A missing key or a value of another
// type means the manager wired the run incorrectly.
func Lookup[T any](ns Namespace, key string) (T, error) {
	var zero T
	raw, ok := ns[key]
	if !ok {
		return zero, faults.Internal("namespace key %q is missing", key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, faults.Internal("namespace key %q holds %T, expected %T", key, raw, zero)
	}
	return v, nil
}

// LookupOr returns the value of key as T, or def when the key is absent or
// nil. A value of another type is still an internal fault.
func LookupOr[T any](ns Namespace, key string, def T) (T, error) {
	raw, ok := ns[key]
	if !ok || raw == nil {
		return def, nil
	}
	return Lookup[T](ns, key)
}
