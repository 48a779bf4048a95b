package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
	"github.com/sekia-ai/mailcmd/pkg/protocol"
)

// DefaultNATSTimeout bounds connect and flush.
const DefaultNATSTimeout = 5 * time.Second

// commandSource identifies mailcmd in published command envelopes.
const commandSource = "mailcmd"

// NATSConfig holds NATS settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	CommandSecret string        `mapstructure:"command_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type natsHandler struct {
	cfg    NATSConfig
	opts   []nats.Option
	logger zerolog.Logger
}

func newNATSHandler(cfg NATSConfig, opts []nats.Option, logger zerolog.Logger) *natsHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultNATSTimeout
	}
	return &natsHandler{cfg: cfg, opts: opts, logger: logger}
}

// Handle publishes the command envelope on a connection scoped to this call.
func (h *natsHandler) Handle(_ context.Context, svc registry.Service, params command.Params) error {
	spec, ok := svc.Spec.(registry.NATSSpec)
	if !ok {
		return fmt.Errorf("%w: %s is %q", ErrSpecMismatch, svc.Action, svc.Kind())
	}
	if h.cfg.URL == "" {
		return fmt.Errorf("%w: nats.url is empty", ErrNotConfigured)
	}

	cmd := protocol.Command{
		Command: svc.Action,
		Payload: map[string]any(params),
		Source:  commandSource,
	}
	if err := protocol.SignCommand(&cmd, h.cfg.CommandSecret); err != nil {
		return fmt.Errorf("sign command: %w", err)
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	opts := []nats.Option{
		nats.Name(commandSource),
		nats.Timeout(h.cfg.Timeout),
		nats.NoReconnect(),
	}
	if h.cfg.Token != "" {
		opts = append(opts, nats.Token(h.cfg.Token))
	}
	opts = append(opts, h.opts...)

	nc, err := nats.Connect(h.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	if err := nc.Publish(spec.Subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", spec.Subject, err)
	}
	if err := nc.FlushTimeout(h.cfg.Timeout); err != nil {
		return fmt.Errorf("nats flush %s: %w", spec.Subject, err)
	}

	h.logger.Info().
		Str("action", svc.Action).
		Str("subject", spec.Subject).
		Bool("signed", cmd.Signature != "").
		Msg("nats command published")
	return nil
}
