package server

import (
	"net/http"
)

// AuthorizedClients lists the clients the signed-in user has approved
func (s *Server) AuthorizedClients() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.auth.AuthorizedClients(r.Context(), userFromContext(r.Context()))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authorized_clients": list})
	}
}

// RevokeAuthorizedClient withdraws consent and the client's tokens for the user
func (s *Server) RevokeAuthorizedClient() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.auth.RevokeAuthorization(r.Context(), userFromContext(r.Context()), r.PathValue("clientId"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
