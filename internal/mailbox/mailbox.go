// Package mailbox reads unseen messages from an IMAP mailbox and marks them
// seen once they have been handled.
package mailbox

import "context"

// Message is one unseen message as seen by the dispatcher.
type Message struct {
	UID     uint32
	Sender  string
	Subject string
	Body    string
}

// Session is an open mailbox. It is used by one cycle and closed at its end.
type Session interface {
	ListUnseen(ctx context.Context) ([]Message, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

// Dialer opens a Session.
type Dialer func(ctx context.Context) (Session, error)
