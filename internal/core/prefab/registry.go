package prefab

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type entry struct {
	def Definition
	sum uint64
}

// Registry holds prefab definitions by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Fingerprint hashes the canonical encoding of d.
func Fingerprint(d Definition) (uint64, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

// Register adds defs. Definitions without a name are skipped, and registering
// an identical definition again is a no-op. A different definition under a
// taken name is rejected; the remaining definitions are still registered.
func (r *Registry) Register(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		sum, err := Fingerprint(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("prefab %s: %w", d.Name, err))
			continue
		}
		if existing, ok := r.entries[d.Name]; ok {
			if existing.sum != sum {
				errs = append(errs, fmt.Errorf("%w: %s", ErrPrefabConflict, d.Name))
			}
			continue
		}
		r.entries[d.Name] = entry{def: d, sum: sum}
	}
	return errors.Join(errs...)
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.def, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
