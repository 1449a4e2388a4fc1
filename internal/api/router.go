package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// Smart-home directive endpoint (machine-facing)
	r.Post("/alexa/directive", s.handleDirective)

	// Account-linking flow (browser-facing)
	r.Route("/link", func(r chi.Router) {
		r.Get("/start", s.handleLinkStart)
		r.Get("/callback", s.handleLinkCallback)
	})

	// Device self-registration (agent-facing)
	r.Post("/devices/register", s.handleDeviceRegister)

	// Command-audit trail
	r.Get("/audit", s.handleAuditList)

	// Health check
	r.Get("/healthz", s.handleHealth)

	return r
}
