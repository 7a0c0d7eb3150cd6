package http

import (
	"errors"
	"net/http"

	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/httpx"
	"github.com/fablekids/auth/pkg/slogx"
)

// UserInfoHandler serves the OIDC UserInfo endpoint.
type UserInfoHandler struct {
	UserInfoService *service.UserInfoService
}

// ServeHTTP returns the claims about the authenticated subject, filtered by
// the scopes of the presented access token.
//
//	@Summary		OIDC UserInfo endpoint
//	@Description	Returns claims about the authenticated subject. The claim set is filtered
//	@Description	by the access token's scopes: kid_profile exposes the display profile,
//	@Description	library.read exposes the library list, write-only scopes expose nothing
//	@Description	beyond the subject identifier.
//	@Tags			OIDC
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]interface{}	"Scope-filtered claims"
//	@Failure		401	{object}	map[string]interface{}	"Missing or invalid access token"
//	@Router			/v1/userinfo [get]
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.UserInfoService == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	ctx := r.Context()

	subjectID, ok := ctx.Value(httpx.CtxKeySubjectID).(string)
	if !ok || subjectID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}
	scopes, _ := ctx.Value(httpx.CtxKeyScopes).([]string)

	claims, err := h.UserInfoService.UserInfo(ctx, subjectID, scopes)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGrant) {
			authsdk.ErrInvalidToken.WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("userinfo lookup failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, claims)
}
