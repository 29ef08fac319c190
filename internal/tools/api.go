package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/agentplate/agentplate/pkg/schema"
)

// apiGateway executes api-type tools as HTTP requests.
type apiGateway struct {
	client *http.Client
}

func (g *apiGateway) run(ctx context.Context, cfg schema.APIConfig, input map[string]any) (map[string]any, error) {
	if cfg.URL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "api tool requires a url")
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode request body: %s", err.Error()).WithCause(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "build request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "request %s %s: %s", method, cfg.URL, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "read response: %s", err.Error()).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"api call failed: %s", resp.Status).
			WithDetails(map[string]any{"status": resp.StatusCode, "url": cfg.URL})
	}

	return parseResponseBody(respBody), nil
}

// parseResponseBody decodes a 2xx response body into a document. Object
// bodies pass through; arrays, scalars, and non-JSON bodies are wrapped
// under "result" so the payload is never dropped.
func parseResponseBody(body []byte) map[string]any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return map[string]any{"result": string(trimmed)}
	}
	if doc, ok := decoded.(map[string]any); ok && doc != nil {
		return doc
	}
	return map[string]any{"result": decoded}
}
