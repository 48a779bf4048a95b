package registry

import (
	"fmt"
	"sort"
)

// Registry maps action names to services. It is never modified after
// construction and is safe for concurrent reads.
type Registry struct {
	services map[string]Service
}

// New builds a Registry from services. Action names must be unique.
func New(services ...Service) (*Registry, error) {
	r := &Registry{services: make(map[string]Service, len(services))}
	for _, svc := range services {
		if svc.Action == "" {
			return nil, fmt.Errorf("%w: empty action name", ErrInvalidService)
		}
		if svc.Spec == nil {
			return nil, fmt.Errorf("%w: %s: no handler spec", ErrInvalidService, svc.Action)
		}
		if _, dup := r.services[svc.Action]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, svc.Action)
		}
		r.services[svc.Action] = svc
	}
	return r, nil
}

// Empty returns a registry without services. Every action resolves to
// ErrUnknownAction.
func Empty() *Registry {
	return &Registry{services: map[string]Service{}}
}

// Lookup returns the service registered for action.
func (r *Registry) Lookup(action string) (Service, bool) {
	if r == nil {
		return Service{}, false
	}
	svc, ok := r.services[action]
	return svc, ok
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.services)
}

// Services returns all services sorted by action name.
func (r *Registry) Services() []Service {
	if r == nil {
		return nil
	}
	out := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}
