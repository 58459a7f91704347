package clearing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gridsim/marketsim/internal/domain"
)

// Registry maps mechanism names to matching functions. The application builds
// it once at startup and resolves names from config into explicit function
// references; markets never touch the registry after construction.
type Registry struct {
	mechanisms map[string]domain.Mechanism
	mu         sync.RWMutex
}

// NewRegistry returns a registry preloaded with the stock mechanisms.
func NewRegistry() *Registry {
	r := &Registry{mechanisms: make(map[string]domain.Mechanism)}
	r.Register("pay_as_clear", PayAsClear)
	r.Register("pay_as_bid", PayAsBid)
	return r
}

// Register adds a mechanism under the given name, replacing any existing
// entry.
func (r *Registry) Register(name string, m domain.Mechanism) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mechanisms[name] = m
}

// Get resolves a mechanism by name.
func (r *Registry) Get(name string) (domain.Mechanism, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mechanisms[name]
	if !ok {
		return nil, fmt.Errorf("mechanism %q: %w", name, domain.ErrUnknownMechanism)
	}
	return m, nil
}

// List returns the registered mechanism names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.mechanisms))
	for n := range r.mechanisms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
