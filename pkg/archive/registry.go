package archive

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry resolves location IDs to archive data managers.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]DataManager
}

// NewRegistry creates a registry holding the given managers.
func NewRegistry(managers ...DataManager) *Registry {
	r := &Registry{managers: make(map[string]DataManager)}
	for _, m := range managers {
		r.Register(m)
	}
	return r
}

// NewDefaultRegistry creates a registry with the built-in managers whose IDs are listed
// in enabled. An empty list enables every built-in manager.
func NewDefaultRegistry(enabled []string) (*Registry, error) {
	builtin := map[string]DataManager{
		MPQManagerID: NewMPQManager(),
		ZipManagerID: NewZipManager(),
	}
	if len(enabled) == 0 {
		enabled = []string{MPQManagerID, ZipManagerID}
	}

	r := NewRegistry()
	for _, id := range enabled {
		m, ok := builtin[strings.ToLower(id)]
		if !ok {
			return nil, fmt.Errorf("unknown archive manager %q", id)
		}
		r.Register(m)
	}
	return r, nil
}

// Register adds or replaces a manager.
func (r *Registry) Register(m DataManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[strings.ToLower(m.ID())] = m
}

// Get returns the manager registered for id.
func (r *Registry) Get(id string) (DataManager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[strings.ToLower(id)]
	return m, ok
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.managers))
	for id := range r.managers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
