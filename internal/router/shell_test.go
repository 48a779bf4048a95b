package router

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

type runCall struct {
	name string
	args []string
}

func fakeRunner(calls *[]runCall, err error) runFunc {
	return func(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
		*calls = append(*calls, runCall{name: name, args: args})
		return []byte("done\n"), []byte("boom\n"), err
	}
}

func TestShellHandler_RejectsTokenOutsideAllowList(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"program", "rm -rf /"},
		{"argument", "shutdown -h"},
		{"empty", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []runCall
			h := newShellHandler(ShellConfig{}, fakeRunner(&calls, nil), testLogger())
			svc := registry.Service{Action: "x", Spec: registry.ShellSpec{Command: tt.template}}

			err := h.Handle(context.Background(), svc, command.Params{})
			if !errors.Is(err, ErrCommandNotAllowed) {
				t.Errorf("Handle() error = %v, want ErrCommandNotAllowed", err)
			}
			if len(calls) != 0 {
				t.Errorf("runner called %d times, want 0", len(calls))
			}
		})
	}
}

func TestShellHandler_PassesParametersAsArguments(t *testing.T) {
	var calls []runCall
	cfg := ShellConfig{AllowedCommands: []string{"shutdown", "-h"}}
	h := newShellHandler(cfg, fakeRunner(&calls, nil), testLogger())

	svc := registry.Service{
		Action: "aus",
		Parameters: []registry.Parameter{
			{Name: "when", Required: true},
			{Name: "message"},
		},
		Spec: registry.ShellSpec{Command: "shutdown -h"},
	}
	// Values are never checked against the allow-list.
	params := command.Params{
		"message": "; rm -rf /",
		"when":    json.Number("5"),
		"extra":   true,
	}
	if err := h.Handle(context.Background(), svc, params); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	want := []runCall{{name: "shutdown", args: []string{"-h", "5", "; rm -rf /", "true"}}}
	if diff := cmp.Diff(want, calls, cmp.AllowUnexported(runCall{})); diff != "" {
		t.Errorf("runner calls mismatch (-want +got):\n%s", diff)
	}
}

func TestShellHandler_RunnerError(t *testing.T) {
	var calls []runCall
	h := newShellHandler(ShellConfig{}, fakeRunner(&calls, errors.New("not found")), testLogger())
	svc := registry.Service{Action: "neustart", Spec: registry.ShellSpec{Command: "reboot"}}

	err := h.Handle(context.Background(), svc, command.Params{})
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Handle() error = %v, want ErrCommandFailed", err)
	}
}

func TestShellHandler_ExecExitStatus(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	h := newShellHandler(ShellConfig{AllowedCommands: []string{"true", "false"}}, nil, testLogger())

	ok := registry.Service{Action: "ok", Spec: registry.ShellSpec{Command: "true"}}
	if err := h.Handle(context.Background(), ok, command.Params{}); err != nil {
		t.Errorf("Handle(true) error = %v", err)
	}

	fail := registry.Service{Action: "fail", Spec: registry.ShellSpec{Command: "false"}}
	err := h.Handle(context.Background(), fail, command.Params{})
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Handle(false) error = %v, want ErrCommandFailed", err)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"an", "an"},
		{json.Number("21.5"), "21.5"},
		{true, "true"},
		{[]any{"a", json.Number("1")}, `["a",1]`},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
