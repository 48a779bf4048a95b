package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAction is returned when no service is registered for an action.
	ErrUnknownAction = errors.New("registry: unknown action")

	// ErrValidation is matched by every parameter validation failure.
	ErrValidation = errors.New("registry: validation failed")

	// ErrRegistryNotFound is returned when the services file does not exist.
	ErrRegistryNotFound = errors.New("registry: services file not found")

	// ErrInvalidService is returned when a service definition is malformed.
	ErrInvalidService = errors.New("registry: invalid service")

	// ErrDuplicateAction is returned when two services share an action name.
	ErrDuplicateAction = errors.New("registry: duplicate action")
)

// MissingParamsError lists the required parameters a command did not supply.
type MissingParamsError struct {
	Action  string
	Missing []string
}

func (e *MissingParamsError) Error() string {
	return fmt.Sprintf("missing parameters for %s: %s", e.Action, strings.Join(e.Missing, ", "))
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *MissingParamsError) Is(target error) bool {
	return target == ErrValidation
}
