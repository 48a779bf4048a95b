package router

import "errors"

var (
	// ErrHandlerNotFound is returned when a function service names an action
	// that is not compiled in.
	ErrHandlerNotFound = errors.New("router: handler not found")

	// ErrUnsupportedKind is returned when no handler is configured for a kind.
	ErrUnsupportedKind = errors.New("router: unsupported kind")

	// ErrSpecMismatch is returned when a handler receives a spec of another kind.
	ErrSpecMismatch = errors.New("router: spec does not match handler")

	// ErrCommandNotAllowed is returned when a shell template uses a program or
	// argument outside the allow-list.
	ErrCommandNotAllowed = errors.New("router: command not allowed")

	// ErrCommandFailed is returned when a shell command exits non-zero.
	ErrCommandFailed = errors.New("router: command failed")

	// ErrHTTPStatus is returned for HTTP responses with status >= 400.
	ErrHTTPStatus = errors.New("router: http error status")

	// ErrUnboundParameter is returned when a query placeholder has no value.
	ErrUnboundParameter = errors.New("router: unbound query parameter")

	// ErrNotConfigured is returned when a handler's backend has no address.
	ErrNotConfigured = errors.New("router: backend not configured")
)
