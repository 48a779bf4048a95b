// Package dispatch runs mail command cycles: read unseen messages, keep the
// ones from allowed senders, order their commands by priority and execute
// them one by one.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/allowlist"
	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/mailbox"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

// ErrMailboxConnection is returned when the mailbox cannot be opened or
// listed. It is the only error that aborts a cycle.
var ErrMailboxConnection = errors.New("dispatch: mailbox connection failed")

// Router executes a validated command.
type Router interface {
	Route(ctx context.Context, svc registry.Service, params command.Params) error
}

// Engine runs one dispatch cycle per RunOnce call.
type Engine struct {
	dial     mailbox.Dialer
	allow    *allowlist.List
	registry *registry.Registry
	router   Router
	logger   zerolog.Logger

	// Overridable for testing.
	buildCommand func(messageID uint32, subject, body string) (command.Command, command.BodyFormat, bool)
	newRunID     func() string
}

// NewEngine creates an Engine. A nil registry is treated as empty.
func NewEngine(dial mailbox.Dialer, allow *allowlist.List, reg *registry.Registry, router Router, logger zerolog.Logger) *Engine {
	if reg == nil {
		reg = registry.Empty()
	}
	return &Engine{
		dial:         dial,
		allow:        allow,
		registry:     reg,
		router:       router,
		logger:       logger.With().Str("component", "dispatch").Logger(),
		buildCommand: command.Build,
		newRunID:     func() string { return "run_" + uuid.NewString() },
	}
}

type pending struct {
	cmd    command.Command
	sender string
}

// RunOnce processes every unseen message once. Every listed message is
// marked seen whatever its outcome. Per-command failures are reported as
// outcomes; only mailbox connection failures are returned as errors.
func (e *Engine) RunOnce(ctx context.Context) (Report, error) {
	report := Report{RunID: e.newRunID()}
	logger := e.logger.With().Str("run_id", report.RunID).Logger()

	sess, err := e.dial(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrMailboxConnection, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn().Err(err).Msg("close mailbox")
		}
	}()

	messages, err := sess.ListUnseen(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: list unseen: %w", ErrMailboxConnection, err)
	}
	logger.Info().Int("messages", len(messages)).Msg("mailbox scanned")

	var queue []pending
	for _, msg := range messages {
		if o, ok := e.admit(msg, &queue, logger); !ok {
			o.log(logger)
			report.Outcomes = append(report.Outcomes, o)
		}
		if err := sess.MarkSeen(ctx, msg.UID); err != nil {
			logger.Warn().Err(err).Uint32("message_id", msg.UID).Msg("mark seen failed")
		}
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].cmd.Priority < queue[j].cmd.Priority
	})

	for i := range queue {
		o := e.execute(ctx, &queue[i])
		o.log(logger)
		report.Outcomes = append(report.Outcomes, o)
	}

	logger.Info().
		Int("commands", len(queue)).
		Int("succeeded", report.Count(StatusSuccess)).
		Msg("cycle complete")
	return report, nil
}

// admit turns an authorized message into a queued command. It returns the
// outcome and false when the message is dropped.
func (e *Engine) admit(msg mailbox.Message, queue *[]pending, logger zerolog.Logger) (Outcome, bool) {
	if !e.allow.Allowed(msg.Sender) {
		return Outcome{
			MessageID: msg.UID,
			Sender:    msg.Sender,
			Status:    StatusUnauthorized,
			Detail:    "sender not in allow-list",
		}, false
	}

	cmd, format, ok := e.buildCommand(msg.UID, msg.Subject, msg.Body)
	if !ok {
		return Outcome{
			MessageID: msg.UID,
			Sender:    msg.Sender,
			Status:    StatusUnknownAction,
			Detail:    "subject has no action",
		}, false
	}

	logger.Debug().
		Uint32("message_id", msg.UID).
		Str("action", cmd.Action).
		Stringer("priority", cmd.Priority).
		Str("format", string(format)).
		Int("params", len(cmd.Params)).
		Msg("command parsed")

	*queue = append(*queue, pending{cmd: cmd, sender: msg.Sender})
	return Outcome{}, true
}

func (e *Engine) execute(ctx context.Context, p *pending) Outcome {
	o := Outcome{
		Command:   &p.cmd,
		MessageID: p.cmd.MessageID,
		Sender:    p.sender,
	}

	svc, err := e.registry.Check(p.cmd.Action, p.cmd.Params)
	switch {
	case errors.Is(err, registry.ErrUnknownAction):
		o.Status = StatusUnknownAction
		o.Detail = err.Error()
		return o
	case err != nil:
		o.Status = StatusValidationFailed
		o.Detail = err.Error()
		return o
	}

	if err := e.router.Route(ctx, svc, p.cmd.Params); err != nil {
		o.Status = StatusHandlerFailed
		o.Detail = err.Error()
		return o
	}
	o.Status = StatusSuccess
	return o
}
