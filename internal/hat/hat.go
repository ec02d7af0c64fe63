// Package hat defines named units of work and the static registry that
// maps them to event topics. Hats declare pub/sub topology only; all
// execution routes through the fallback executor.
package hat

import (
	"fmt"
	"strings"
)

// FallbackID is the distinguished hat that is always registered with a
// "*" subscription, cannot be removed, and is the only hat whose output
// may trigger loop completion.
const FallbackID = "ralph"

// Hat is immutable after registry construction.
type Hat struct {
	ID             string
	Name           string
	Subscriptions  []string
	Publishes      []string
	MaxActivations int // 0 means unlimited
	Backend        string
}

// Registry is the static hat table supplied to the loop.
type Registry struct {
	hats  map[string]Hat
	order []string
}

// NewRegistry creates a registry pre-populated with the fallback hat.
func NewRegistry() *Registry {
	r := &Registry{hats: make(map[string]Hat)}
	r.hats[FallbackID] = Hat{
		ID:            FallbackID,
		Name:          "Ralph",
		Subscriptions: []string{"*"},
	}
	r.order = append(r.order, FallbackID)
	return r
}

// Add registers a custom hat. The fallback id is reserved.
func (r *Registry) Add(h Hat) error {
	id := strings.TrimSpace(h.ID)
	if id == "" {
		id = normalizeID(h.Name)
	}
	if id == "" {
		return fmt.Errorf("hat has no id or name")
	}
	if id == FallbackID {
		return fmt.Errorf("hat id %q is reserved for the fallback executor", FallbackID)
	}
	if _, exists := r.hats[id]; exists {
		return fmt.Errorf("hat %q already registered", id)
	}
	h.ID = id
	if len(h.Subscriptions) == 0 {
		return fmt.Errorf("hat %q declares no subscriptions", id)
	}
	r.hats[id] = h
	r.order = append(r.order, id)
	return nil
}

// Get looks up a hat by id.
func (r *Registry) Get(id string) (Hat, bool) {
	h, ok := r.hats[id]
	return h, ok
}

// Fallback returns the fallback hat.
func (r *Registry) Fallback() Hat {
	return r.hats[FallbackID]
}

// Custom returns the non-fallback hats in registration order.
func (r *Registry) Custom() []Hat {
	var out []Hat
	for _, id := range r.order {
		if id == FallbackID {
			continue
		}
		out = append(out, r.hats[id])
	}
	return out
}

// All returns every hat in registration order, fallback first.
func (r *Registry) All() []Hat {
	out := make([]Hat, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.hats[id])
	}
	return out
}

func normalizeID(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}
