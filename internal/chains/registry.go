package chains

import (
	"fmt"
	"sort"
	"sync"
)

// Capabilities bundles everything the dispatcher needs for one network.
type Capabilities struct {
	Network   Network
	Preparer  Preparer
	Signer    Signer
	Describer Describer
}

// Registry maps CAIP-2 network identifiers to their capability set.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capabilities
}

func NewRegistry() *Registry {
	return &Registry{
		caps: make(map[string]Capabilities),
	}
}

// Register adds a network's capability set. Registering the same network id
// twice is a wiring bug and returns an error.
func (r *Registry) Register(c Capabilities) error {
	if c.Network == nil {
		return fmt.Errorf("capabilities without a network")
	}
	if c.Preparer == nil || c.Signer == nil || c.Describer == nil {
		return fmt.Errorf("network %s: incomplete capabilities", c.Network.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.Network.ID()
	if _, exists := r.caps[id]; exists {
		return fmt.Errorf("network %s already registered", id)
	}
	r.caps[id] = c
	return nil
}

// Resolve returns the capability set for a network id.
func (r *Registry) Resolve(id string) (Capabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.caps[id]
	if !ok {
		return Capabilities{}, fmt.Errorf("unsupported network: %s", id)
	}
	return c, nil
}

// IDs returns the registered network identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.caps))
	for id := range r.caps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
