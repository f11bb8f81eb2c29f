package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Subscriber channels
	r.Get(pathOrDefault(s.sseCfg.Path, "/events"), s.handleEvents)
	r.Get(pathOrDefault(s.wsCfg.Path, "/ws"), s.handleWebSocket)

	r.Get("/config", s.handleConfig)

	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
		})

		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/state", s.handleSnapshot)
		r.Post("/state", s.handleWrite)
		r.Post("/write", s.handleWrite)
		r.Get("/states", s.handleScopedValues)
		r.Get("/history", s.handleHistory)

		r.Post("/auth", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/check", s.handleCheck)

		r.Group(func(r chi.Router) {
			r.Use(s.installerMiddleware)
			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	if s.assets != nil {
		r.Handle("/*", s.assets)
	}

	return r
}

func pathOrDefault(p, def string) string {
	if p == "" {
		return def
	}
	return p
}
