package transport

import (
	"log/slog"
	"net/http"

	"github.com/solstice-id/authcore/internal/observability"
	"github.com/solstice-id/authcore/internal/orchestrator"
	"github.com/solstice-id/authcore/internal/store"
)

type registerRequest struct {
	Email    string             `json:"email"`
	Password string             `json:"password"`
	FullName string             `json:"full_name"`
	Phone    string             `json:"phone"`
	Kind     store.IdentityKind `json:"kind"`
	Locale   string             `json:"locale"`
	Currency string             `json:"currency"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("register: invalid request body", "error", err)
		respondError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	user, err := s.orch.Register(r.Context(), orchestrator.RegistrationInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Kind:     req.Kind,
		Locale:   req.Locale,
		Currency: req.Currency,
	})
	if err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "token_invalid")
		return
	}
	if err := s.orch.VerifyEmail(r.Context(), req.Token); err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

func (s *Server) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendVerificationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if err := s.orch.ResendVerification(r.Context(), req.Email); err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

type loginRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	DeviceTrustToken string `json:"device_trust_token"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_credentials")
		return
	}
	outcome, err := s.orch.Login(r.Context(), req.Email, req.Password, req.DeviceTrustToken)
	if err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		slog.Warn("login failed", "email", req.Email, "ip", realIP(r))
		writeDomainError(w, err)
		return
	}
	writeLoginOutcome(w, outcome)
}

type verifyMFARequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
	RememberDevice bool   `json:"remember_device"`
}

func (s *Server) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req verifyMFARequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_mfa")
		return
	}
	outcome, err := s.orch.VerifyMFA(r.Context(), req.ChallengeToken, req.Code, realIP(r), r.UserAgent(), req.RememberDevice)
	if err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	writeLoginOutcome(w, outcome)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_refresh")
		return
	}
	outcome, err := s.orch.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	writeLoginOutcome(w, outcome)
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if err := s.orch.Logout(r.Context(), req.RefreshToken); err != nil {
		observability.Capture(r.Context(), err)
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type federatedLoginRequest struct {
	Provider         string `json:"provider"`
	IDPAssertion     string `json:"idp_assertion"`
	DeviceTrustToken string `json:"device_trust_token"`
}

func (s *Server) federatedLogin(w http.ResponseWriter, r *http.Request) {
	var req federatedLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "assertion_invalid")
		return
	}
	outcome, err := s.orch.FederatedLogin(r.Context(), req.Provider, req.IDPAssertion, req.DeviceTrustToken)
	if err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	writeLoginOutcome(w, outcome)
}

// writeLoginOutcome renders the tagged LoginOutcome union as the wire shape
// spec §6 names for login/verify_mfa/refresh/federated_login.
func writeLoginOutcome(w http.ResponseWriter, outcome orchestrator.LoginOutcome) {
	switch o := outcome.(type) {
	case orchestrator.Challenged:
		respondJSON(w, http.StatusOK, map[string]any{
			"requires_mfa":    true,
			"mfa_type":        o.MFAType,
			"challenge_token": o.ChallengeToken,
			"user":            o.User,
		})
	case orchestrator.Authenticated:
		body := map[string]any{
			"requires_mfa":  false,
			"access_token":  o.AccessToken,
			"refresh_token": o.RefreshToken,
			"token_type":    o.TokenType,
			"user":          o.User,
		}
		if o.DeviceTrustToken != "" {
			body["device_trust_token"] = o.DeviceTrustToken
		}
		respondJSON(w, http.StatusOK, body)
	}
}
