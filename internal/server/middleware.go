package server

import (
	"context"
	"net/http"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/model"
)

type contextKey int

const userKey contextKey = iota

// currentUser returns the authenticated user attached by withUser, or nil.
func currentUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(userKey).(*model.User)
	return user
}

// authenticate resolves the session cookie to an active user.
func (s *Server) authenticate(r *http.Request) (*model.User, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "not authenticated")
	}
	userID, err := s.sessions.Resolve(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindNotFound, "not authenticated")
	}
	return user, nil
}

// withUser requires a valid session and stores the user on the context.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: errorBody{
				Code: "unauthenticated", Detail: "authentication required",
			}})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// requireAuthority gates a subtree on one authority.
func requireAuthority(authority string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r.Context())
			if user == nil || !user.HasAuthority(authority) {
				writeJSON(w, http.StatusForbidden, errorEnvelope{Error: errorBody{
					Code: "forbidden", Detail: "missing authority " + authority,
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
