package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers all session routes with the Chi router.
// Public: /register, /login, /refresh, /validate-token, /status.
// Protected: /password.
//
// /refresh and /status are public in the routing sense: they carry
// their own token in the Authorization header and tolerate
// recently-expired tokens, which the auth middleware would reject.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
		r.Post("/refresh", handler.Refresh)
		r.Post("/validate-token", handler.ValidateToken)
		r.Get("/status", handler.Status)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/password", handler.ChangePassword)
		})
	})
}
