package dispatch

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/actions"
	"github.com/sekia-ai/mailcmd/internal/allowlist"
	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/mailbox"
	"github.com/sekia-ai/mailcmd/internal/registry"
	"github.com/sekia-ai/mailcmd/internal/router"
)

func testLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// mockSession records mailbox calls.
type mockSession struct {
	mu       sync.Mutex
	messages []mailbox.Message
	listErr  error
	markErr  error
	seen     []uint32
	closed   bool
}

func (s *mockSession) ListUnseen(context.Context) ([]mailbox.Message, error) {
	return s.messages, s.listErr
}

func (s *mockSession) MarkSeen(_ context.Context, uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, uid)
	return s.markErr
}

func (s *mockSession) Close() error {
	s.closed = true
	return nil
}

func dialerFor(s *mockSession) mailbox.Dialer {
	return func(context.Context) (mailbox.Session, error) { return s, nil }
}

type routed struct {
	action string
	params command.Params
}

// mockRouter records routed commands and fails the actions in failures.
type mockRouter struct {
	calls    []routed
	failures map[string]error
}

func (r *mockRouter) Route(_ context.Context, svc registry.Service, params command.Params) error {
	r.calls = append(r.calls, routed{svc.Action, params})
	return r.failures[svc.Action]
}

func (r *mockRouter) routedActions() []string {
	var names []string
	for _, c := range r.calls {
		names = append(names, c.action)
	}
	return names
}

func functionService(action string, required ...string) registry.Service {
	svc := registry.Service{Action: action, Spec: registry.FunctionSpec{Name: action}}
	for _, name := range required {
		svc.Parameters = append(svc.Parameters, registry.Parameter{Name: name, Required: true})
	}
	return svc
}

func mustRegistry(t *testing.T, services ...registry.Service) *registry.Registry {
	t.Helper()
	reg, err := registry.New(services...)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

const alice = "alice@example.com"

func statuses(r Report) []Status {
	var out []Status
	for _, o := range r.Outcomes {
		out = append(out, o.Status)
	}
	return out
}

func TestRunOnce_OrdersByPriorityStably(t *testing.T) {
	sess := &mockSession{messages: []mailbox.Message{
		{UID: 1, Sender: alice, Subject: "A [PRIORITY:2]"},
		{UID: 2, Sender: alice, Subject: "B [PRIORITY:5]"},
		{UID: 3, Sender: alice, Subject: "C [PRIORITY:2]"},
		{UID: 4, Sender: alice, Subject: "D"},
	}}
	reg := mustRegistry(t, functionService("A"), functionService("B"), functionService("C"), functionService("D"))
	r := &mockRouter{}

	e := NewEngine(dialerFor(sess), allowlist.New([]string{alice}), reg, r, testLogger())
	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if diff := cmp.Diff([]string{"A", "C", "B", "D"}, r.routedActions()); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
	if report.Count(StatusSuccess) != 4 {
		t.Errorf("successes = %d, want 4", report.Count(StatusSuccess))
	}
	if report.Outcomes[3].Command.Priority != command.LowestPriority {
		t.Errorf("D priority = %v, want lowest", report.Outcomes[3].Command.Priority)
	}
	if diff := cmp.Diff([]uint32{1, 2, 3, 4}, sess.seen); diff != "" {
		t.Errorf("seen mismatch (-want +got):\n%s", diff)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
	if len(report.RunID) < len("run_") || report.RunID[:4] != "run_" {
		t.Errorf("RunID = %q, want run_ prefix", report.RunID)
	}
}

func TestRunOnce_UnauthorizedSenderNeverParsed(t *testing.T) {
	sess := &mockSession{messages: []mailbox.Message{
		{UID: 9, Sender: "mallory@example.com", Subject: "neustart", Body: "x: y"},
	}}
	r := &mockRouter{}
	e := NewEngine(dialerFor(sess), allowlist.New([]string{alice}), registry.Empty(), r, testLogger())

	parsed := false
	e.buildCommand = func(uint32, string, string) (command.Command, command.BodyFormat, bool) {
		parsed = true
		return command.Command{}, "", false
	}

	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if parsed {
		t.Error("body parsed for unauthorized sender")
	}
	if len(r.calls) != 0 {
		t.Errorf("router called %d times, want 0", len(r.calls))
	}
	want := []Outcome{{MessageID: 9, Sender: "mallory@example.com", Status: StatusUnauthorized, Detail: "sender not in allow-list"}}
	if diff := cmp.Diff(want, report.Outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{9}, sess.seen); diff != "" {
		t.Errorf("seen mismatch (-want +got):\n%s", diff)
	}
}

func TestRunOnce_FailuresDoNotShortCircuit(t *testing.T) {
	sess := &mockSession{
		messages: []mailbox.Message{
			{UID: 1, Sender: alice, Subject: "unbekannt [PRIORITY:1]"},
			{UID: 2, Sender: alice, Subject: "klima [PRIORITY:2]", Body: "modus: kühl"},
			{UID: 3, Sender: alice, Subject: "kaputt [PRIORITY:3]"},
			{UID: 4, Sender: alice, Subject: "licht [PRIORITY:4]", Body: "aktion: an"},
			{UID: 5, Sender: alice, Subject: "   "},
		},
		markErr: errors.New("store failed"),
	}
	reg := mustRegistry(t,
		functionService("klima", "temperatur"),
		functionService("kaputt"),
		functionService("licht", "aktion"),
	)
	r := &mockRouter{failures: map[string]error{"kaputt": errors.New("relay stuck")}}

	e := NewEngine(dialerFor(sess), allowlist.New([]string{alice}), reg, r, testLogger())
	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	want := []Status{
		StatusUnknownAction, // blank subject, reported before execution
		StatusUnknownAction,
		StatusValidationFailed,
		StatusHandlerFailed,
		StatusSuccess,
	}
	if diff := cmp.Diff(want, statuses(report)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if report.Outcomes[0].Detail != "subject has no action" || report.Outcomes[0].Command != nil {
		t.Errorf("blank subject outcome = %+v", report.Outcomes[0])
	}
	if got := report.Outcomes[2].Detail; got != "missing parameters for klima: temperatur" {
		t.Errorf("validation detail = %q", got)
	}
	if diff := cmp.Diff([]string{"kaputt", "licht"}, r.routedActions()); diff != "" {
		t.Errorf("routed mismatch (-want +got):\n%s", diff)
	}
	if len(sess.seen) != 5 {
		t.Errorf("marked %d messages seen, want 5", len(sess.seen))
	}
}

func TestRunOnce_MailboxConnectionErrors(t *testing.T) {
	dialErr := func(context.Context) (mailbox.Session, error) { return nil, errors.New("connection refused") }
	e := NewEngine(dialErr, allowlist.New(nil), nil, &mockRouter{}, testLogger())
	if _, err := e.RunOnce(context.Background()); !errors.Is(err, ErrMailboxConnection) {
		t.Errorf("RunOnce(dial error) = %v, want ErrMailboxConnection", err)
	}

	sess := &mockSession{listErr: errors.New("BYE")}
	e = NewEngine(dialerFor(sess), allowlist.New(nil), nil, &mockRouter{}, testLogger())
	if _, err := e.RunOnce(context.Background()); !errors.Is(err, ErrMailboxConnection) {
		t.Errorf("RunOnce(list error) = %v, want ErrMailboxConnection", err)
	}
	if !sess.closed {
		t.Error("session not closed after list error")
	}
}

func TestRunOnce_EndToEndSwitchLight(t *testing.T) {
	sess := &mockSession{messages: []mailbox.Message{
		{UID: 42, Sender: "Alice <ALICE@example.com>", Subject: "licht [PRIORITY:1]", Body: "aktion: an\n"},
	}}
	reg, err := registry.Parse([]byte(`
services:
  licht:
    type: function
    function: switch_light
    parameters:
      - name: aktion
        required: true
`))
	if err != nil {
		t.Fatal(err)
	}

	var calls []map[string]any
	table := actions.Table{
		"switch_light": func(_ context.Context, params map[string]any) error {
			calls = append(calls, params)
			return nil
		},
	}
	rt := router.New(router.Config{}, table, testLogger())

	e := NewEngine(dialerFor(sess), allowlist.New([]string{alice}), reg, rt, testLogger())
	report, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if diff := cmp.Diff([]Status{StatusSuccess}, statuses(report)); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]map[string]any{{"aktion": "an"}}, calls); diff != "" {
		t.Errorf("switch_light calls mismatch (-want +got):\n%s", diff)
	}
	if got := report.Outcomes[0].Command.Priority; got != 1 {
		t.Errorf("priority = %v, want 1", got)
	}
}
