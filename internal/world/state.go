package world

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the inferred activity of a teacher.
type Status string

const (
	StatusFree    Status = "Free"
	StatusInClass Status = "In Class"
	StatusAbsent  Status = "Absent"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusFree, StatusInClass, StatusAbsent:
		return true
	}
	return false
}

// ErrRegistryCorrupt is returned when the registry's internal structure no longer agrees with itself.
var ErrRegistryCorrupt = errors.New("agent registry corrupt")

// Agent is one tracked teacher.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    LatLng    `json:"location"`
	Status      Status    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// Registry owns the canonical agent state. Agents are seeded once and then
// only mutated in place; the set of IDs never changes.
type Registry struct {
	order  []*Agent          // insertion order
	index  map[string]*Agent // agentID -> agent
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewRegistry seeds a registry. Every agent starts Free.
func NewRegistry(seed []Agent, now time.Time, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		index:  make(map[string]*Agent, len(seed)),
		logger: logger,
	}
	for _, a := range seed {
		if a.ID == "" {
			return nil, fmt.Errorf("seed agent %q has no id: %w", a.Name, ErrRegistryCorrupt)
		}
		if _, dup := r.index[a.ID]; dup {
			return nil, fmt.Errorf("duplicate seed agent %s: %w", a.ID, ErrRegistryCorrupt)
		}
		a.Status = StatusFree
		a.LastUpdated = now
		cp := a
		r.order = append(r.order, &cp)
		r.index[a.ID] = &cp
	}
	logger.Info("agent registry seeded", zap.Int("agents", len(r.order)))
	return r, nil
}

// List returns a snapshot of all agents in insertion order.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, len(r.order))
	for i, a := range r.order {
		out[i] = *a
	}
	return out
}

// IDs returns agent IDs in insertion order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	for i, a := range r.order {
		ids[i] = a.ID
	}
	return ids
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Get returns a copy of the agent with the given ID.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.index[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// UpsertPosition overwrites an agent's position. Unknown IDs are ignored.
func (r *Registry) UpsertPosition(id string, pos LatLng) bool {
	found, _ := r.Mutate(id, func(a *Agent) error {
		a.Location = pos
		return nil
	})
	return found
}

// SetStatus overwrites an agent's status. Unknown IDs are ignored.
func (r *Registry) SetStatus(id string, status Status) bool {
	found, _ := r.Mutate(id, func(a *Agent) error {
		a.Status = status
		return nil
	})
	return found
}

// Touch sets LastUpdated. Unknown IDs are ignored.
func (r *Registry) Touch(id string, t time.Time) bool {
	found, _ := r.Mutate(id, func(a *Agent) error {
		a.LastUpdated = t
		return nil
	})
	return found
}

// ApplyExternalUpdate overwrites position, status and LastUpdated in one step.
// Unknown IDs are silently ignored; the return value reports whether the agent existed.
func (r *Registry) ApplyExternalUpdate(id string, pos LatLng, status Status, t time.Time) bool {
	found, _ := r.Mutate(id, func(a *Agent) error {
		a.Location = pos
		a.Status = status
		a.LastUpdated = t
		return nil
	})
	if !found {
		r.logger.Debug("external update for unknown agent ignored", zap.String("agent", id))
	}
	return found
}

// Mutate runs fn against the live agent while holding the write lock.
// fn works on a scratch copy; the copy is committed only when fn returns nil,
// so a failed update never leaves an agent half-written.
func (r *Registry) Mutate(id string, fn func(a *Agent) error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.index[id]
	if !ok {
		return false, nil
	}
	scratch := *a
	if err := fn(&scratch); err != nil {
		return true, err
	}
	scratch.ID = a.ID
	*a = scratch
	return true, nil
}

// Verify checks that the ordered list and the index describe the same agents.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) != len(r.index) {
		return fmt.Errorf("%d ordered agents vs %d indexed: %w", len(r.order), len(r.index), ErrRegistryCorrupt)
	}
	for i, a := range r.order {
		if a == nil {
			return fmt.Errorf("nil agent at position %d: %w", i, ErrRegistryCorrupt)
		}
		if r.index[a.ID] != a {
			return fmt.Errorf("agent %s not indexed: %w", a.ID, ErrRegistryCorrupt)
		}
	}
	return nil
}

// CountByStatus tallies agents per status.
func (r *Registry) CountByStatus() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := map[Status]int{StatusFree: 0, StatusInClass: 0, StatusAbsent: 0}
	for _, a := range r.order {
		counts[a.Status]++
	}
	return counts
}
