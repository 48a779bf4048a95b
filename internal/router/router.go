// Package router executes validated commands. Each registry kind has exactly
// one handler; a command is routed to the handler of its service's kind and
// never falls through to another.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/actions"
	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

// Handler executes one kind of service.
type Handler interface {
	Handle(ctx context.Context, svc registry.Service, params command.Params) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, svc registry.Service, params command.Params) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, svc registry.Service, params command.Params) error {
	return f(ctx, svc, params)
}

// Config holds the backend settings of every handler.
type Config struct {
	HTTP     HTTPConfig
	Shell    ShellConfig
	Database DatabaseConfig
	MQTT     MQTTConfig
	NATS     NATSConfig
	Kafka    KafkaConfig
}

// Router dispatches services to handlers by kind.
type Router struct {
	handlers map[registry.Kind]Handler
	table    actions.Table
	logger   zerolog.Logger
}

// Option customizes a Router.
type Option func(*options)

type options struct {
	httpClient *http.Client
	natsOpts   []nats.Option
	overrides  map[registry.Kind]Handler
}

// WithHTTPClient replaces the HTTP client; its timeout is kept as is.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithNATSOptions appends options to every NATS connection.
func WithNATSOptions(opts ...nats.Option) Option {
	return func(o *options) { o.natsOpts = append(o.natsOpts, opts...) }
}

// WithHandler replaces the handler for kind.
func WithHandler(kind registry.Kind, h Handler) Option {
	return func(o *options) {
		if o.overrides == nil {
			o.overrides = make(map[registry.Kind]Handler)
		}
		o.overrides[kind] = h
	}
}

// New builds a Router with one handler per kind.
func New(cfg Config, table actions.Table, logger zerolog.Logger, opts ...Option) *Router {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.With().Str("component", "router").Logger()

	r := &Router{
		handlers: map[registry.Kind]Handler{
			registry.KindFunction: newFunctionHandler(table),
			registry.KindHTTP:     newHTTPHandler(cfg.HTTP, o.httpClient, logger),
			registry.KindShell:    newShellHandler(cfg.Shell, nil, logger),
			registry.KindDatabase: newDatabaseHandler(cfg.Database, logger),
			registry.KindMQTT:     newMQTTHandler(cfg.MQTT, nil, logger),
			registry.KindNATS:     newNATSHandler(cfg.NATS, o.natsOpts, logger),
			registry.KindKafka:    newKafkaHandler(cfg.Kafka, nil, logger),
		},
		table:  table,
		logger: logger,
	}
	for kind, h := range o.overrides {
		r.handlers[kind] = h
	}
	return r
}

// Route executes svc with params using the handler for svc's kind.
func (r *Router) Route(ctx context.Context, svc registry.Service, params command.Params) error {
	h, ok := r.handlers[svc.Kind()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, svc.Kind())
	}
	r.logger.Debug().
		Str("action", svc.Action).
		Str("kind", string(svc.Kind())).
		Msg("routing command")
	return h.Handle(ctx, svc, params)
}

// Verify reports function services whose function is not compiled in and
// services of kinds without a handler.
func (r *Router) Verify(reg *registry.Registry) error {
	var errs []error
	for _, svc := range reg.Services() {
		if _, ok := r.handlers[svc.Kind()]; !ok {
			errs = append(errs, fmt.Errorf("%s: %w: %q", svc.Action, ErrUnsupportedKind, svc.Kind()))
			continue
		}
		if spec, ok := svc.Spec.(registry.FunctionSpec); ok {
			if _, found := r.table.Lookup(spec.Name); !found {
				errs = append(errs, fmt.Errorf("%s: %w: %q", svc.Action, ErrHandlerNotFound, spec.Name))
			}
		}
	}
	return errors.Join(errs...)
}
