package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentplate/agentplate/pkg/schema"
)

// HTTPInvoker calls functions deployed behind an HTTP gateway. A function
// named "agent-service" at base URL "https://fns.example.com" is invoked
// as POST https://fns.example.com/agent-service with a JSON body.
type HTTPInvoker struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Invoker = (*HTTPInvoker)(nil)

// NewHTTPInvoker creates an HTTPInvoker. token, when non-empty, is sent as
// a bearer token on every request.
func NewHTTPInvoker(baseURL, token string) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "function name is required")
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode function input: %s", err.Error()).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+name, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "invoke function %q: %s", name, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "read function %q response: %s", name, err.Error()).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"function %q returned status %d", name, resp.StatusCode).
			WithDetails(map[string]any{"body": truncate(string(respBody), 1024)})
	}

	return schema.NormalizeDocument(respBody), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
