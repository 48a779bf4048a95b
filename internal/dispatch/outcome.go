package dispatch

import (
	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/command"
)

// Status classifies how a message or command ended.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusValidationFailed Status = "validation_failed"
	StatusHandlerFailed    Status = "handler_failed"
	StatusUnauthorized     Status = "unauthorized"
	StatusUnknownAction    Status = "unknown_action"
)

// Outcome is the result of one message. Command is nil when the message never
// became a command.
type Outcome struct {
	Command   *command.Command
	MessageID uint32
	Sender    string
	Status    Status
	Detail    string
}

// Report collects the outcomes of one cycle. Outcomes of messages that never
// became commands come first, in mailbox order, followed by executed
// commands in execution order.
type Report struct {
	RunID    string
	Outcomes []Outcome
}

// Count returns the number of outcomes with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (o Outcome) log(logger zerolog.Logger) {
	ev := logger.Warn()
	if o.Status == StatusSuccess {
		ev = logger.Info()
	}
	ev = ev.
		Uint32("message_id", o.MessageID).
		Str("sender", o.Sender).
		Str("status", string(o.Status))
	if o.Command != nil {
		ev = ev.
			Str("action", o.Command.Action).
			Stringer("priority", o.Command.Priority)
	}
	if o.Detail != "" {
		ev = ev.Str("detail", o.Detail)
	}
	ev.Msg("command outcome")
}
