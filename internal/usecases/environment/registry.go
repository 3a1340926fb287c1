// Package environment holds the configured environments and tracks which one
// is current.
package environment

import (
	"sort"
	"sync"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

// UnknownDisplayName is reported for a current name with no configured entry.
const UnknownDisplayName = "Unknown"

// Registry is the set of configured environments. The set itself never
// changes; only the current name does.
type Registry struct {
	mu           sync.RWMutex
	environments map[string]domain.Environment
	current      string
}

// NewRegistry creates a registry. current does not have to name a configured
// environment; that is reported when a connection is attempted.
func NewRegistry(environments map[string]domain.Environment, current string) *Registry {
	envs := make(map[string]domain.Environment, len(environments))
	for name, env := range environments {
		if env.Name == "" {
			env.Name = name
		}
		envs[name] = env
	}
	return &Registry{
		environments: envs,
		current:      current,
	}
}

// List returns every environment's display name keyed by name.
func (r *Registry) List() map[string]string {
	out := make(map[string]string, len(r.environments))
	for name, env := range r.environments {
		out[name] = env.DisplayName
	}
	return out
}

// Names returns the configured names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.environments))
	for name := range r.environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Current returns the current name and its display name.
func (r *Registry) Current() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if env, ok := r.environments[r.current]; ok {
		return r.current, env.DisplayName
	}
	return r.current, UnknownDisplayName
}

// CurrentName returns the current name.
func (r *Registry) CurrentName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Lookup returns the named environment.
func (r *Registry) Lookup(name string) (domain.Environment, error) {
	env, ok := r.environments[name]
	if !ok {
		return domain.Environment{}, domain.NewEnvironmentNotFoundError(name)
	}
	return env, nil
}

// Has reports whether name is configured.
func (r *Registry) Has(name string) bool {
	_, ok := r.environments[name]
	return ok
}

// SetCurrent selects name as the current environment.
func (r *Registry) SetCurrent(name string) error {
	if !r.Has(name) {
		return domain.NewEnvironmentNotFoundError(name)
	}

	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
	return nil
}
