package mailbox

import (
	"strings"
	"testing"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMessage_SinglePart(t *testing.T) {
	raw := crlf(`From: "Anna Beispiel" <Anna@Example.com>
To: home@example.com
Subject: licht [PRIORITY:2]
Content-Type: text/plain; charset=utf-8

aktion: an
`)
	msg, err := parseMessage(7, raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if msg.UID != 7 {
		t.Errorf("UID = %d, want 7", msg.UID)
	}
	if msg.Sender != "Anna@Example.com" {
		t.Errorf("Sender = %q, want Anna@Example.com", msg.Sender)
	}
	if msg.Subject != "licht [PRIORITY:2]" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if strings.TrimSpace(msg.Body) != "aktion: an" {
		t.Errorf("Body = %q, want aktion: an", msg.Body)
	}
}

func TestParseMessage_MultipartPrefersTextPlain(t *testing.T) {
	raw := crlf(`From: anna@example.com
Subject: klima
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=XYZ

--XYZ
Content-Type: text/html; charset=utf-8

<p>ignored</p>
--XYZ
Content-Type: text/plain; charset=utf-8

{"temperatur": 21}
--XYZ--
`)
	msg, err := parseMessage(1, raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if strings.TrimSpace(msg.Body) != `{"temperatur": 21}` {
		t.Errorf("Body = %q", msg.Body)
	}
}

func TestParseMessage_MultipartWithoutTextPlain(t *testing.T) {
	raw := crlf(`From: anna@example.com
Subject: klima
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=XYZ

--XYZ
Content-Type: text/html; charset=utf-8

<p>only html</p>
--XYZ--
`)
	msg, err := parseMessage(1, raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if msg.Body != "" {
		t.Errorf("Body = %q, want empty", msg.Body)
	}
}

func TestParseMessage_EncodedHeadersAndBody(t *testing.T) {
	raw := crlf(`From: =?utf-8?q?J=C3=BCrgen?= <juergen@example.com>
Subject: =?utf-8?q?klima_k=C3=BCche?=
Content-Type: text/plain; charset=iso-8859-1
Content-Transfer-Encoding: quoted-printable

modus: k=FChl
`)
	msg, err := parseMessage(3, raw)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if msg.Sender != "juergen@example.com" {
		t.Errorf("Sender = %q", msg.Sender)
	}
	if msg.Subject != "klima küche" {
		t.Errorf("Subject = %q, want klima küche", msg.Subject)
	}
	if strings.TrimSpace(msg.Body) != "modus: kühl" {
		t.Errorf("Body = %q, want modus: kühl", msg.Body)
	}
}
