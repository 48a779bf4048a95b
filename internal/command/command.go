// Package command turns an inbound email into a Command: the action named by
// the subject, its ordering priority and the parameters carried in the body.
package command

import (
	"math"
	"regexp"
)

// Priority orders commands within one batch. Lower values run first.
type Priority int64

// LowestPriority is assigned when a subject carries no usable priority marker.
// Such commands run after every command with an explicit priority.
const LowestPriority Priority = math.MaxInt64

// Params is the parameter mapping handed to a handler.
type Params map[string]any

// Command is one unit of work built from an authorized message.
type Command struct {
	Priority  Priority `json:"priority"`
	MessageID uint32   `json:"message_id"`
	Action    string   `json:"action"`
	Params    Params   `json:"params"`
}

var actionRegex = regexp.MustCompile(`^[\p{L}\p{N}_]+`)

// ExtractAction returns the leading word of the subject.
func ExtractAction(subject string) (string, bool) {
	action := actionRegex.FindString(subject)
	return action, action != ""
}

// Build assembles a Command from a message's subject and body.
// It reports false when the subject names no action.
func Build(messageID uint32, subject, body string) (Command, BodyFormat, bool) {
	action, ok := ExtractAction(subject)
	if !ok {
		return Command{}, "", false
	}
	params, format := ParseBody(body)
	return Command{
		Priority:  ExtractPriority(subject),
		MessageID: messageID,
		Action:    action,
		Params:    params,
	}, format, true
}
