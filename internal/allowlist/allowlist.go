// Package allowlist decides which senders may trigger actions.
package allowlist

import (
	"strings"

	"github.com/emersion/go-message/mail"
)

// List is an immutable set of permitted sender addresses.
type List struct {
	senders map[string]struct{}
}

// New builds a List. Addresses may be bare ("a@b.c") or carry a display name
// ("Alice <a@b.c>"); matching ignores case and surrounding whitespace.
func New(senders []string) *List {
	l := &List{senders: make(map[string]struct{}, len(senders))}
	for _, s := range senders {
		if addr := normalize(s); addr != "" {
			l.senders[addr] = struct{}{}
		}
	}
	return l
}

// Allowed reports whether sender is on the list. An empty list allows nobody.
func (l *List) Allowed(sender string) bool {
	if l == nil {
		return false
	}
	addr := normalize(sender)
	if addr == "" {
		return false
	}
	_, ok := l.senders[addr]
	return ok
}

// Len returns the number of distinct addresses.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.senders)
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if a, err := mail.ParseAddress(s); err == nil {
		s = a.Address
	}
	return strings.ToLower(s)
}
