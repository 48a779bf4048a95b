package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

// DefaultHTTPTimeout bounds each HTTP call.
const DefaultHTTPTimeout = 10 * time.Second

// maxLoggedBody caps how much of a response body is kept for diagnostics.
const maxLoggedBody = 2048

// HTTPConfig holds HTTP handler settings.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type httpHandler struct {
	client *http.Client
	logger zerolog.Logger
}

func newHTTPHandler(cfg HTTPConfig, client *http.Client, logger zerolog.Logger) *httpHandler {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &httpHandler{client: client, logger: logger}
}

func (h *httpHandler) Handle(ctx context.Context, svc registry.Service, params command.Params) error {
	spec, ok := svc.Spec.(registry.HTTPSpec)
	if !ok {
		return fmt.Errorf("%w: %s is %q", ErrSpecMismatch, svc.Action, svc.Kind())
	}

	req, err := buildRequest(ctx, spec, params)
	if err != nil {
		return err
	}

	resp, err := h.client.Do(req) // #nosec G107 -- URL comes from the services file
	if err != nil {
		return fmt.Errorf("http %s %s: %w", spec.Method, spec.URL, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrHTTPStatus, spec.Method, spec.URL, resp.StatusCode, bytes.TrimSpace(body))
	}

	h.logger.Info().
		Str("action", svc.Action).
		Str("method", spec.Method).
		Str("url", spec.URL).
		Int("status", resp.StatusCode).
		Bytes("response", bytes.TrimSpace(body)).
		Msg("http call succeeded")
	return nil
}

func buildRequest(ctx context.Context, spec registry.HTTPSpec, params command.Params) (*http.Request, error) {
	if spec.Method == http.MethodPost {
		jsonBody, err := params.Encode()
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, spec.URL, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	u, err := url.Parse(spec.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for key, value := range params {
		if list, ok := value.([]any); ok {
			for _, item := range list {
				q.Add(key, formatValue(item))
			}
			continue
		}
		q.Set(key, formatValue(value))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}
