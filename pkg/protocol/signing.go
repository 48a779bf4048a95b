package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// signedFields is the part of a Command covered by the signature. Struct
// field order fixes the JSON layout.
type signedFields struct {
	Command string         `json:"command"`
	Payload map[string]any `json:"payload"`
	Source  string         `json:"source"`
}

func (c *Command) mac(secret string) (string, error) {
	canonical, err := json.Marshal(signedFields{Command: c.Command, Payload: c.Payload, Source: c.Source})
	if err != nil {
		return "", err
	}
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(canonical)
	return hex.EncodeToString(m.Sum(nil)), nil
}

// SignCommand sets cmd.Signature to the HMAC-SHA256 of the command.
// An empty secret leaves the command unsigned.
func SignCommand(cmd *Command, secret string) error {
	if secret == "" {
		return nil
	}
	sig, err := cmd.mac(secret)
	if err != nil {
		return err
	}
	cmd.Signature = sig
	return nil
}

// VerifyCommand checks cmd.Signature. With an empty secret every command
// verifies; with a secret, unsigned commands fail. It is for agents consuming
// published commands; mailcmd itself only signs.
func VerifyCommand(cmd *Command, secret string) bool {
	if secret == "" {
		return true
	}
	if cmd.Signature == "" {
		return false
	}
	expected, err := cmd.mac(secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(cmd.Signature))
}
