package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/auth"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id must be a positive integer", "id")
	}
	return id, nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createUserPayload struct {
	credentialsPayload
	Authorities []string `json:"authorities"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var payload createUserPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := validateCredentials(&payload.credentialsPayload); err != nil {
		writeError(w, err)
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := s.users.Create(r.Context(), payload.Login, hash, payload.FullName, payload.Authorities)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type updateUserPayload struct {
	FullName    *string  `json:"full_name"`
	IsActive    *bool    `json:"is_active"`
	Authorities []string `json:"authorities"`
	Password    *string  `json:"password"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload updateUserPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	params := auth.UpdateParams{
		FullName:    payload.FullName,
		IsActive:    payload.IsActive,
		Authorities: payload.Authorities,
	}
	if payload.Password != nil {
		if len(*payload.Password) < 8 {
			writeError(w, apperr.Validation("password must be at least 8 characters", "password"))
			return
		}
		hash, err := auth.HashPassword(*payload.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		params.PasswordHash = &hash
	}

	user, err := s.users.Update(r.Context(), id, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
