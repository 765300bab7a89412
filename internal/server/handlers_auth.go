package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/auth"
	"github.com/sells-group/taxpoint/internal/model"
)

type credentialsPayload struct {
	Login    string  `json:"login"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.KindValidation, "invalid JSON body")
	}
	return nil
}

func validateCredentials(p *credentialsPayload) error {
	p.Login = strings.TrimSpace(p.Login)
	var fields []string
	if len(p.Login) < 3 {
		fields = append(fields, "login")
	}
	if len(p.Password) < 8 {
		fields = append(fields, "password")
	}
	if len(fields) > 0 {
		return apperr.Validation("login must be at least 3 and password at least 8 characters", fields...)
	}
	return nil
}

// handleRegister creates an account with read access to orders and opens a
// session.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := validateCredentials(&payload); err != nil {
		writeError(w, err)
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := s.users.Create(r.Context(), payload.Login, hash, payload.FullName,
		[]string{model.AuthorityReadOrders})
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := s.sessions.Create(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, user)
}

// handleLogin verifies credentials and opens a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.users.GetByLogin(r.Context(), strings.TrimSpace(payload.Login))
	if err != nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, payload.Password) {
		writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: errorBody{
			Code: "invalid_credentials", Detail: "invalid login or password",
		}})
		return
	}

	token, err := s.sessions.Create(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, user)
}

// handleLogout destroys the current session if any.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cookieName); err == nil {
		_ = s.sessions.Destroy(r.Context(), cookie.Value)
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r.Context()))
}
