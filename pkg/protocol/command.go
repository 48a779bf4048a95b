// Package protocol defines the command envelope mailcmd publishes for
// nats-kind services. Agents listening on sekia.commands.<agent> consume the
// same layout.
package protocol

import (
	"bytes"
	"encoding/json"
)

// Command is the envelope published for one routed action.
type Command struct {
	Command   string         `json:"command"`
	Payload   map[string]any `json:"payload"`
	Source    string         `json:"source"`
	Signature string         `json:"signature,omitempty"`
}

// ParseCommand decodes an envelope, keeping payload numbers as json.Number
// so a signature computed over them verifies unchanged. Agents consuming
// published commands call it before VerifyCommand.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err := dec.Decode(&cmd)
	return cmd, err
}
