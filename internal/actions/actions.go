// Package actions holds the device actions that function-kind services call.
package actions

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Func is a device action. A nil error means the action succeeded.
type Func func(ctx context.Context, params map[string]any) error

// Table maps function names, as used in the services file, to actions.
type Table map[string]Func

// Lookup returns the action registered under name.
func (t Table) Lookup(name string) (Func, bool) {
	fn, ok := t[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns the actions shipped with mailcmd.
func Builtin(logger zerolog.Logger) Table {
	d := devices{logger: logger.With().Str("component", "devices").Logger()}
	return Table{
		"switch_light":       d.switchLight,
		"set_ac_temperature": d.setACTemperature,
	}
}

type devices struct {
	logger zerolog.Logger
}

func (d devices) switchLight(_ context.Context, params map[string]any) error {
	aktion := stringParam(params, "aktion")
	switch aktion {
	case "an":
		d.logger.Info().Str("device", "living-room-light").Msg("light switched on")
	case "aus":
		d.logger.Info().Str("device", "living-room-light").Msg("light switched off")
	default:
		return fmt.Errorf("switch_light: unknown aktion %q (want an or aus)", aktion)
	}
	return nil
}

func (d devices) setACTemperature(_ context.Context, params map[string]any) error {
	temperatur := stringParam(params, "temperatur")
	if temperatur == "" {
		return fmt.Errorf("set_ac_temperature: temperatur is required")
	}
	modus := stringParam(params, "modus")
	if modus == "" {
		modus = "kühl"
	}
	d.logger.Info().
		Str("device", "air-conditioner").
		Str("temperatur", temperatur).
		Str("modus", modus).
		Msg("air conditioner set")
	return nil
}

// stringParam renders a parameter as text; JSON numbers and booleans are
// formatted with fmt.
func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
