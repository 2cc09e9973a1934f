package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-oidc-provider/clients"
	oautherrors "github.com/jrsteele09/go-oidc-provider/internal/errors"
)

const maxClientBodyBytes = 64 << 10

// createdClient is the one response that carries the plaintext secret.
type createdClient struct {
	*clients.Client
	ClientSecret string `json:"client_secret"`
}

// ListClients returns every client to admins and owned clients to others
func (s *Server) ListClients() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, err := queryInt(r, "offset")
		if err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}

		list, err := s.auth.ListClients(r.Context(), userFromContext(r.Context()), offset, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": list})
	}
}

func (s *Server) CreateClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg clients.Registration
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClientBodyBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&reg); err != nil {
			writeJSONError(w, oautherrors.CodeInvalidRequest, "malformed client registration", http.StatusBadRequest)
			return
		}

		client, secret, err := s.auth.RegisterClient(r.Context(), reg, userFromContext(r.Context()))
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusCreated, createdClient{Client: client, ClientSecret: secret})
	}
}

func (s *Server) DeleteClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.DeleteClient(r.Context(), userFromContext(r.Context()), r.PathValue("id")); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, oautherrors.ErrInvalidRequest
	}
	return n, nil
}
