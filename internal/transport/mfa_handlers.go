package transport

import (
	"net/http"

	"github.com/solstice-id/authcore/internal/observability"
)

type totpFinalizeRequest struct {
	Code string `json:"code"`
}

func (s *Server) totpSetup(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	email := r.URL.Query().Get("email")
	enrollment, err := s.orch.TOTPSetup(r.Context(), identityID, email)
	if err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, enrollment)
}

func (s *Server) totpFinalize(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	var req totpFinalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_mfa")
		return
	}
	if err := s.orch.TOTPFinalize(r.Context(), identityID, req.Code); err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) totpDisable(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	var req totpFinalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_mfa")
		return
	}
	if err := s.orch.TOTPDisable(r.Context(), identityID, req.Code); err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) emailMFAEnable(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err := s.orch.EmailMFAEnable(r.Context(), identityID); err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) emailMFADisable(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err := s.orch.EmailMFADisable(r.Context(), identityID); err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) emailMFASend(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	email := r.URL.Query().Get("email")
	if err := s.orch.EmailMFASend(r.Context(), identityID, email); err != nil {
		if isInternalError(err) {
			observability.Capture(r.Context(), err)
		}
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"code_sent": true})
}

type emailMFAVerifyRequest struct {
	Code string `json:"code"`
}

func (s *Server) emailMFAVerify(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	var req emailMFAVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_mfa")
		return
	}
	ok, err := s.orch.EmailMFAVerify(r.Context(), identityID, req.Code, realIP(r), r.UserAgent())
	if err != nil {
		observability.Capture(r.Context(), err)
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_mfa")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type backupVerifyRequest struct {
	Code string `json:"code"`
}

func (s *Server) backupVerify(w http.ResponseWriter, r *http.Request) {
	identityID, err := identityFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	var req backupVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_mfa")
		return
	}
	ok, err := s.orch.BackupVerify(r.Context(), identityID, req.Code, realIP(r), r.UserAgent())
	if err != nil {
		observability.Capture(r.Context(), err)
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_mfa")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
