package api

import (
	"errors"
	"net/http"
	"strings"

	"agente-digital/core/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "json invalido")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "username y password requeridos")
		return
	}
	res, err := s.authSvc.Login(r.Context(), req.Username, req.Password, s.clientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserLocked):
			writeError(w, http.StatusForbidden, "account_locked", "cuenta bloqueada temporalmente")
		case errors.Is(err, auth.ErrUserInactive):
			writeError(w, http.StatusForbidden, "account_inactive", "cuenta desactivada")
		case errors.Is(err, auth.ErrBadCredentials):
			writeError(w, http.StatusUnauthorized, "bad_credentials", "credenciales invalidas")
		default:
			s.logger.Errorf("login de %s: %v", req.Username, err)
			writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if err := s.authSvc.Logout(r.Context(), claims); err != nil {
		s.logger.Errorf("logout: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error interno")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sesion cerrada"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"username":     claims.Username,
		"roles":        claims.Roles,
		"inquilino_id": claims.TenantID,
	})
}
