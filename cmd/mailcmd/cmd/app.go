package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/actions"
	"github.com/sekia-ai/mailcmd/internal/allowlist"
	"github.com/sekia-ai/mailcmd/internal/config"
	"github.com/sekia-ai/mailcmd/internal/dispatch"
	"github.com/sekia-ai/mailcmd/internal/mailbox"
	"github.com/sekia-ai/mailcmd/internal/registry"
	"github.com/sekia-ai/mailcmd/internal/router"
)

// app is the wiring shared by run and poll.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	registry *registry.Registry
	router   *router.Router
	dial     mailbox.Dialer
	allow    *allowlist.List
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if servicesPath != "" {
		cfg.Services.Path = servicesPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer
	switch cfg.Format {
	case "json":
		out = w
	case "console", "":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// loadRegistry reads the services file. A missing file yields an empty
// registry unless services.required is set.
func loadRegistry(cfg config.ServicesConfig, logger zerolog.Logger) (*registry.Registry, error) {
	reg, err := registry.Load(cfg.Path)
	if errors.Is(err, registry.ErrRegistryNotFound) && !cfg.Required {
		logger.Warn().Str("path", cfg.Path).Msg("services file not found, no action is registered")
		return registry.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	logger.Info().Str("path", cfg.Path).Int("services", reg.Len()).Msg("services loaded")
	return reg, nil
}

// newApp loads everything a mail cycle needs and refuses to start when a
// function service names an action that is not compiled in.
func newApp() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateMailbox(); err != nil {
		return nil, err
	}

	reg, err := loadRegistry(cfg.Services, logger)
	if err != nil {
		return nil, err
	}

	rt := router.New(cfg.RouterConfig(), actions.Builtin(logger), logger)
	if err := rt.Verify(reg); err != nil {
		return nil, fmt.Errorf("verify services: %w", err)
	}

	allow := allowlist.New(cfg.Authorization.AllowedSenders)
	if allow.Len() == 0 {
		logger.Warn().Msg("authorization.allowed_senders is empty, every message will be rejected")
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		router:   rt,
		dial:     mailbox.NewDialer(cfg.IMAP, logger),
		allow:    allow,
	}, nil
}

func (a *app) engine(reg *registry.Registry) *dispatch.Engine {
	return dispatch.NewEngine(a.dial, a.allow, reg, a.router, a.logger)
}
