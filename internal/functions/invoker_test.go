package functions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplate/agentplate/pkg/schema"
)

func TestRegistry_InvokeRegistered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("echo", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"echoed": input["msg"]}, nil
	}))

	out, err := r.Invoke(context.Background(), "echo", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echoed"])
}

func TestRegistry_UnknownFunction(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "missing", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return nil, nil
	}))
	assert.Error(t, r.Register("fn", nil))
}

func TestRegistry_HandlerErrorWrapped(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register("fail", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return nil, boom
	}))

	_, err := r.Invoke(context.Background(), "fail", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `function "fail"`)
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, input map[string]any) (map[string]any, error) { return nil, nil }
	require.NoError(t, r.Register("beta", noop))
	require.NoError(t, r.Register("alpha", noop))
	assert.Equal(t, []string{"alpha", "beta"}, r.Names())
}

func TestHTTPInvoker_PostsJSONWithBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/agent-service", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"hello"}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, "tok")
	out, err := inv.Invoke(context.Background(), "agent-service", map[string]any{"query": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out["response"])
}

func TestHTTPInvoker_Non2xxIsExecutionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, "")
	_, err := inv.Invoke(context.Background(), "agent-service", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

func TestHTTPInvoker_EmptyName(t *testing.T) {
	inv := NewHTTPInvoker("http://localhost:1", "")
	_, err := inv.Invoke(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
