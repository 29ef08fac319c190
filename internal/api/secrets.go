package api

import (
	"net/http"

	"github.com/agentplate/agentplate/pkg/schema"
)

// Secret values are write-only over the API: keys can be listed and values
// replaced or removed, but plaintext is never returned.

type putSecretRequest struct {
	Value string `json:"value"`
}

func (s *Server) vaultReady() error {
	if s.deps.Vault == nil {
		return schema.NewError(schema.ErrCodeVault, "secret vault is not configured")
	}
	return nil
}

func (s *Server) handlePutSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.vaultReady(); err != nil {
		writeError(w, err)
		return
	}
	var req putSecretRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key := r.PathValue("key")
	if req.Value == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "value is required"))
		return
	}
	if err := s.deps.Vault.Set(r.Context(), key, []byte(req.Value)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.vaultReady(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Vault.Delete(r.Context(), r.PathValue("key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	if err := s.vaultReady(); err != nil {
		writeError(w, err)
		return
	}
	keys, err := s.deps.Vault.Keys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}
