package registry

import "fmt"

// Check resolves action and verifies params against its schema. It returns
// ErrUnknownAction for unregistered actions and a *MissingParamsError when
// required parameters are absent.
func (r *Registry) Check(action string, params map[string]any) (Service, error) {
	svc, ok := r.Lookup(action)
	if !ok {
		return Service{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if missing := svc.MissingParams(params); len(missing) > 0 {
		return Service{}, &MissingParamsError{Action: action, Missing: missing}
	}
	return svc, nil
}
