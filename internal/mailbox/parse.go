package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // decode non-UTF-8 bodies
	"github.com/emersion/go-message/mail"
)

// parseMessage extracts sender address, decoded subject and body from a raw
// RFC 5322 message. A single-part message yields its whole body; a multipart
// message yields its first text/plain part, or an empty body if it has none.
func parseMessage(uid uint32, raw []byte) (Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("read message %d: %w", uid, err)
	}
	defer mr.Close()

	msg := Message{UID: uid}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].Address
	} else {
		msg.Sender = strings.TrimSpace(mr.Header.Get("From"))
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}

	mediaType, _, _ := mr.Header.ContentType()
	multipart := strings.HasPrefix(mediaType, "multipart/")

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return Message{}, fmt.Errorf("read part of message %d: %w", uid, err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		if multipart {
			if ct, _, _ := h.ContentType(); ct != "text/plain" {
				continue
			}
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return Message{}, fmt.Errorf("read body of message %d: %w", uid, err)
		}
		msg.Body = string(body)
		break
	}
	return msg, nil
}
