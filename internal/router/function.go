package router

import (
	"context"
	"fmt"

	"github.com/sekia-ai/mailcmd/internal/actions"
	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

type functionHandler struct {
	table actions.Table
}

func newFunctionHandler(table actions.Table) *functionHandler {
	return &functionHandler{table: table}
}

func (h *functionHandler) Handle(ctx context.Context, svc registry.Service, params command.Params) error {
	spec, ok := svc.Spec.(registry.FunctionSpec)
	if !ok {
		return fmt.Errorf("%w: %s is %q", ErrSpecMismatch, svc.Action, svc.Kind())
	}
	fn, ok := h.table.Lookup(spec.Name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrHandlerNotFound, spec.Name)
	}
	if err := fn(ctx, params); err != nil {
		return fmt.Errorf("function %s: %w", spec.Name, err)
	}
	return nil
}
