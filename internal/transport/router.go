// Package transport is the thin chi-based JSON shim over the Login
// Orchestrator. Deliberately minimal: spec.md places the Transport layer
// out of scope, so this package does no more than decode requests, call
// the Orchestrator, and encode the tagged-union result.
package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solstice-id/authcore/internal/orchestrator"
	"github.com/solstice-id/authcore/internal/token"
)

// Server wires the Orchestrator into a chi.Mux.
type Server struct {
	Router *chi.Mux
	orch   *orchestrator.Orchestrator
}

// NewServer constructs the HTTP router. tokens is used only by the
// requireAuth middleware guarding the authenticated MFA-management routes.
func NewServer(orch *orchestrator.Orchestrator, tokens *token.Service) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(panicRecovery)
	r.Use(requestLogger)

	limiter := newIPRateLimiter(5, 10)
	r.Use(limiter.middleware)

	s := &Server{Router: r, orch: orch}

	r.Get("/healthz", s.healthz)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/verify-email", s.verifyEmail)
		r.Post("/resend-verification", s.resendVerification)
		r.Post("/login", s.login)
		r.Post("/verify-mfa", s.verifyMFA)
		r.Post("/refresh", s.refresh)
		r.Post("/logout", s.logout)
		r.Post("/federated-login", s.federatedLogin)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(tokens))
			r.Post("/totp/setup", s.totpSetup)
			r.Post("/totp/finalize", s.totpFinalize)
			r.Post("/totp/disable", s.totpDisable)
			r.Post("/email-mfa/enable", s.emailMFAEnable)
			r.Post("/email-mfa/disable", s.emailMFADisable)
			r.Post("/email-mfa/send", s.emailMFASend)
			r.Post("/email-mfa/verify", s.emailMFAVerify)
			r.Post("/backup/verify", s.backupVerify)
		})
	})

	return s
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
