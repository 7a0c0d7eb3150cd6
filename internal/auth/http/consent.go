package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/httpx"
	"github.com/fablekids/auth/pkg/slogx"
)

// ConsentHandler exposes the guardian consent management endpoints. The
// acting guardian is always the authenticated subject; guardianship of the
// named child is enforced by the service, not by a scope.
type ConsentHandler struct {
	ConsentService *service.ConsentService
}

// HandleGrant records a guardian's approval of a child/client/scope grant.
//
//	@Summary		Grant parental consent
//	@Description	Records the authenticated guardian's approval for a child to use a client
//	@Description	with the listed scopes. Re-granting is an upsert: scopes and expiry are
//	@Description	replaced and a prior revocation is cleared. Any authorization request the
//	@Description	child has paused on this client resumes on its next attempt.
//	@Description	Guardians with TOTP enrolled must include a valid totp_code.
//	@Tags			Consents
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.GrantConsentRequest		true	"Consent grant"
//	@Success		201		{object}	authsdk.GrantConsentResponse	"Stored consent record"
//	@Failure		400		{object}	map[string]interface{}			"Invalid request"
//	@Failure		403		{object}	map[string]interface{}			"Not the child's guardian, or verification failed"
//	@Router			/v1/consents [post]
func (h *ConsentHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	if h.ConsentService == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	guardianID, ok := r.Context().Value(httpx.CtxKeySubjectID).(string)
	if !ok || guardianID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.GrantConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.ChildID == "" || req.ClientID == "" || len(req.Scopes) == 0 {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt > 0 {
		t := time.Unix(req.ExpiresAt, 0).UTC()
		expiresAt = &t
	}

	consent, err := h.ConsentService.GrantConsent(r.Context(), service.GrantConsentRequest{
		GuardianID: guardianID,
		ChildID:    req.ChildID,
		ClientID:   req.ClientID,
		Scopes:     req.Scopes,
		ExpiresAt:  expiresAt,
		TOTPCode:   req.TOTPCode,
	})
	if err != nil {
		h.writeConsentError(w, r, err)
		return
	}

	resp := authsdk.GrantConsentResponse{
		ConsentID: consent.ID,
		ChildID:   consent.ChildID,
		ClientID:  consent.ClientID,
		Scopes:    consent.Scopes,
	}
	if consent.ExpiresAt != nil {
		resp.ExpiresAt = consent.ExpiresAt.Unix()
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// HandleRevoke withdraws a previously granted consent.
//
//	@Summary		Revoke parental consent
//	@Description	Withdraws the authenticated guardian's consent for a child/client pair.
//	@Description	Revocation cascades immediately: the child's refresh token families and
//	@Description	any un-redeemed authorization codes for that client are invalidated.
//	@Description	Revoking an already-revoked consent is a no-op.
//	@Tags			Consents
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.RevokeConsentRequest	true	"Consent revocation"
//	@Success		200		{object}	map[string]interface{}			"Empty on success"
//	@Failure		403		{object}	map[string]interface{}			"Not the child's guardian"
//	@Router			/v1/consents [delete]
func (h *ConsentHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if h.ConsentService == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	guardianID, ok := r.Context().Value(httpx.CtxKeySubjectID).(string)
	if !ok || guardianID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.RevokeConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.ChildID == "" || req.ClientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.ConsentService.RevokeConsent(r.Context(), guardianID, req.ChildID, req.ClientID); err != nil {
		h.writeConsentError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{})
}

// HandleList returns the authenticated guardian's consent records.
//
//	@Summary		List parental consents
//	@Description	Lists every consent the authenticated guardian has granted, including
//	@Description	revoked and expired records for audit purposes.
//	@Tags			Consents
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.ListConsentsResponse	"Consent records"
//	@Router			/v1/consents [get]
func (h *ConsentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.ConsentService == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	guardianID, ok := r.Context().Value(httpx.CtxKeySubjectID).(string)
	if !ok || guardianID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	consents, err := h.ConsentService.ListConsents(r.Context(), guardianID)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to list consents", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	resp := authsdk.ListConsentsResponse{Consents: make([]authsdk.ConsentInfo, 0, len(consents))}
	for _, c := range consents {
		resp.Consents = append(resp.Consents, consentInfo(c))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleEnrollTOTP generates a TOTP secret for the authenticated guardian.
//
//	@Summary		Enroll guardian TOTP verification
//	@Description	Generates a TOTP secret for the authenticated guardian and returns the
//	@Description	otpauth:// provisioning URL. Once enrolled, every consent grant must
//	@Description	include a valid totp_code. Minors cannot enroll.
//	@Tags			Consents
//	@Produce		json
//	@Security		BearerAuth
//	@Success		201	{object}	map[string]interface{}	"Provisioning URL"
//	@Failure		403	{object}	map[string]interface{}	"Subject is a minor"
//	@Router			/v1/consents/totp/enroll [post]
func (h *ConsentHandler) HandleEnrollTOTP(w http.ResponseWriter, r *http.Request) {
	if h.ConsentService == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	guardianID, ok := r.Context().Value(httpx.CtxKeySubjectID).(string)
	if !ok || guardianID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	url, err := h.ConsentService.EnrollGuardianTOTP(r.Context(), guardianID)
	if err != nil {
		h.writeConsentError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"otpauth_url": url,
	})
}

func (h *ConsentHandler) writeConsentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotGuardian):
		authsdk.ErrAccessDenied.WriteError(w)
	case errors.Is(err, service.ErrAgeVerificationFailed):
		authsdk.ErrAgeVerificationFailed.WriteError(w)
	case errors.Is(err, service.ErrGuardianVerification):
		authsdk.NewOAuth2Error(
			http.StatusForbidden,
			authsdk.ErrorCodeAccessDenied,
			"guardian verification code is missing or invalid",
		).WriteError(w)
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidScope):
		authsdk.ErrInvalidScope.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("consent operation failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func consentInfo(c domain.ParentalConsent) authsdk.ConsentInfo {
	info := authsdk.ConsentInfo{
		ConsentID: c.ID,
		ChildID:   c.ChildID,
		ClientID:  c.ClientID,
		Scopes:    c.Scopes,
		Granted:   c.Granted,
	}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Unix()
	}
	if c.RevokedAt != nil {
		info.RevokedAt = c.RevokedAt.Unix()
	}
	return info
}
