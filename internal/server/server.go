// Package server is the HTTP and WebSocket gateway.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/taxpoint/internal/auth"
	"github.com/sells-group/taxpoint/internal/config"
	"github.com/sells-group/taxpoint/internal/model"
	"github.com/sells-group/taxpoint/internal/orders"
)

// Deps bundles the collaborators the gateway serves.
type Deps struct {
	Users    *auth.UserStore
	Sessions auth.Sessions
	Orders   *orders.OrderStore
	Tasks    *orders.TaskStore
	Calc     *orders.Calculator
	Importer *orders.Importer
}

// Server routes requests to the order, import, task and user surfaces.
type Server struct {
	cookieName   string
	cookieSecure bool
	sessionTTL   time.Duration
	origins      []string

	users    *auth.UserStore
	sessions auth.Sessions
	orders   *orders.OrderStore
	tasks    *orders.TaskStore
	calc     *orders.Calculator
	importer *orders.Importer
}

// New builds the gateway.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		cookieName:   cfg.Session.CookieName,
		cookieSecure: cfg.Session.CookieSecure,
		sessionTTL:   time.Duration(cfg.Session.TTLSeconds) * time.Second,
		origins:      cfg.App.AllowedOrigins,
		users:        deps.Users,
		sessions:     deps.Sessions,
		orders:       deps.Orders,
		tasks:        deps.Tasks,
		calc:         deps.Calc,
		importer:     deps.Importer,
	}
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.With(s.withUser).Get("/me", s.handleMe)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(s.withUser)
		r.With(requireAuthority(model.AuthorityReadUsers)).Get("/", s.handleListUsers)
		r.With(requireAuthority(model.AuthorityReadUsers)).Get("/{id}", s.handleGetUser)
		r.With(requireAuthority(model.AuthorityEditUsers)).Post("/", s.handleCreateUser)
		r.With(requireAuthority(model.AuthorityEditUsers)).Patch("/{id}", s.handleUpdateUser)
		r.With(requireAuthority(model.AuthorityEditUsers)).Delete("/{id}", s.handleDeleteUser)
	})

	r.Route("/orders", func(r chi.Router) {
		// The websocket endpoints authenticate after the upgrade so they
		// can close with a policy-violation code.
		r.Get("/import/tasks/ws", s.handleTasksWS)
		r.Get("/tax/ws", s.handleTaxPreviewWS)

		r.Group(func(r chi.Router) {
			r.Use(s.withUser)
			r.With(requireAuthority(model.AuthorityReadOrders)).Get("/", s.handleListOrders)
			r.With(requireAuthority(model.AuthorityReadOrders)).Get("/stats", s.handleOrderStats)
			r.With(requireAuthority(model.AuthorityEditOrders)).Post("/", s.handleCreateOrder)
			r.With(requireAuthority(model.AuthorityEditOrders)).Post("/import", s.handleImport)
			r.With(requireAuthority(model.AuthorityReadOrders)).Get("/import/tasks", s.handleListTasks)
		})
	})

	return r
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
