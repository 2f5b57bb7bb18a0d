package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	// Event streaming (SSE)
	r.Get("/events", s.events)

	// Session routes
	r.Route("/session", func(r chi.Router) {
		r.Get("/status", s.sessionStatus)
		r.Post("/message", s.sendMessage)
		r.Get("/message", s.listMessages)
	})

	// Decision endpoint for pending permission requests
	r.Post("/permissions/{permissionID}", s.respondPermission)
}
