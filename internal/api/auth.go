package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/nexowatt-vis/internal/audit"
	"github.com/nerrad567/nexowatt-vis/internal/session"
)

// loginRequest accepts the secret as "secret" or "password".
type loginRequest struct {
	Secret   string `json:"secret"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// handleLogin exchanges the installer secret for a session token. Every
// failure gets the same {"ok":false} body so callers cannot tell a wrong
// secret from an unconfigured one.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{})
		return
	}
	secret := req.Secret
	if secret == "" {
		secret = req.Password
	}

	token, err := s.gate.Login(secret)
	if err != nil {
		outcome := "denied"
		switch {
		case errors.Is(err, session.ErrDisabled):
			outcome = "disabled"
			s.logger.Warn("installer login attempted but no secret is configured")
		case errors.Is(err, session.ErrInvalidHash):
			outcome = "error"
			s.logger.Error("installer secret hash is invalid", "error", err)
		case !errors.Is(err, session.ErrInvalidSecret):
			outcome = "error"
			s.logger.Error("installer login failed", "error", err)
		}
		s.auditLog(r, &audit.Entry{Action: audit.ActionLogin, Outcome: outcome})
		writeJSON(w, http.StatusUnauthorized, loginResponse{})
		return
	}

	s.auditLog(r, &audit.Entry{Action: audit.ActionLogin, Outcome: "ok"})
	resp := loginResponse{OK: true, Token: token}
	if exp, ok := s.gate.Expiry(); ok {
		resp.ExpiresAt = exp.UnixMilli()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogout ends the installer session. It needs no token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.Logout()
	s.auditLog(r, &audit.Entry{Action: audit.ActionLogout, Outcome: "ok"})
	writeOK(w)
}

// handleCheck reports whether X-Auth-Token is the active session token.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if s.gate.IsAuthorized(tokenFrom(r, "")) {
		writeOK(w)
		return
	}
	writeJSON(w, http.StatusUnauthorized, okResponse{})
}
