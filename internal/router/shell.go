package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

// DefaultShellTimeout bounds each shell command.
const DefaultShellTimeout = 30 * time.Second

// DefaultAllowedCommands is used when no allow-list is configured.
var DefaultAllowedCommands = []string{"reboot", "shutdown"}

// ShellConfig holds shell handler settings.
type ShellConfig struct {
	AllowedCommands []string      `mapstructure:"allowed_commands"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// runFunc runs a program and returns its captured output.
type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

type shellHandler struct {
	allowed map[string]bool
	timeout time.Duration
	run     runFunc
	logger  zerolog.Logger
}

func newShellHandler(cfg ShellConfig, run runFunc, logger zerolog.Logger) *shellHandler {
	list := cfg.AllowedCommands
	if list == nil {
		list = DefaultAllowedCommands
	}
	allowed := make(map[string]bool, len(list))
	for _, c := range list {
		allowed[c] = true
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	if run == nil {
		run = execRun
	}
	return &shellHandler{allowed: allowed, timeout: timeout, run: run, logger: logger}
}

func (h *shellHandler) Handle(ctx context.Context, svc registry.Service, params command.Params) error {
	spec, ok := svc.Spec.(registry.ShellSpec)
	if !ok {
		return fmt.Errorf("%w: %s is %q", ErrSpecMismatch, svc.Action, svc.Kind())
	}

	// Only the configured template is checked; parameter values are passed
	// as arguments and never interpreted by a shell.
	tokens := strings.Fields(spec.Command)
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty command", ErrCommandNotAllowed)
	}
	for _, tok := range tokens {
		if !h.allowed[tok] {
			return fmt.Errorf("%w: %q in %q", ErrCommandNotAllowed, tok, spec.Command)
		}
	}

	args := append([]string{}, tokens[1:]...)
	for _, v := range svc.OrderedValues(params) {
		args = append(args, formatValue(v))
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	stdout, stderr, err := h.run(ctx, tokens[0], args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s: exit status %d: %s", ErrCommandFailed, tokens[0], exitErr.ExitCode(), bytes.TrimSpace(stderr))
		}
		return fmt.Errorf("%w: %s: %w", ErrCommandFailed, tokens[0], err)
	}

	h.logger.Info().
		Str("action", svc.Action).
		Str("command", tokens[0]).
		Strs("args", args).
		Bytes("stdout", bytes.TrimSpace(stdout)).
		Msg("shell command succeeded")
	return nil
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- program is allow-listed
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
