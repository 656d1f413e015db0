package solver

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a fresh solver instance
type Factory func() Solver

// Registry maps solver names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a factory
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New instantiates the named solver
func (r *Registry) New(name string) (Solver, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownSolver, name, r.Names())
	}
	return f(), nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binaries overrides the executable used for an external backend, keyed by
// backend name
type Binaries map[string]string

func (b Binaries) path(name, def string) string {
	if p, ok := b[name]; ok && p != "" {
		return p
	}
	return def
}

// DefaultRegistry returns a new registry with every built-in backend
func DefaultRegistry(bins Binaries) *Registry {
	r := NewRegistry()
	r.Register("cbc", func() Solver { return NewCBC(bins.path("cbc", "cbc")) })
	r.Register("glpk", func() Solver { return NewGLPK(bins.path("glpk", "glpsol")) })
	r.Register("highs", func() Solver { return NewHiGHS(bins.path("highs", "highs")) })
	r.Register("scip", func() Solver { return NewSCIP(bins.path("scip", "scip")) })
	r.Register("gurobi", func() Solver { return NewGurobi(bins.path("gurobi", "gurobi_cl")) })
	r.Register("sim", func() Solver { return NewSim() })
	return r
}
