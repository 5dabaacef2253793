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
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{minor}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/io", s.handleDeviceIO)
				r.Post("/open", s.handleOpen)
			})
		})

		r.Route("/handles", func(r chi.Router) {
			r.Get("/", s.handleListHandles)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetHandle)
				r.Delete("/", s.handleRelease)
				r.Get("/read", s.handleRead)
				r.Put("/write", s.handleWrite)
				r.Post("/ioctl", s.handleIoctl)
			})
		})

		r.Get("/nodes", s.handleListNodes)
		r.Get("/audit", s.handleListAuditLogs)
	})

	return r
}

// handleHealth reports liveness and whether the device registry is up.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, code := "ok", http.StatusOK
	if !s.registry.Ready() {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
