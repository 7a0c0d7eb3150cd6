package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/httpx"
	"github.com/fablekids/auth/pkg/slogx"
)

// RevokeHandler processes RFC 7009 token revocation requests.
type RevokeHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP processes token revocation requests.
//
//	@Summary		OAuth2 token revocation endpoint
//	@Description	Revokes a refresh or access token per RFC 7009. Revoking a refresh token
//	@Description	revokes its entire family. Per the RFC the endpoint returns 200 even for
//	@Description	unknown or already-revoked tokens; only failed client authentication errors.
//	@Tags			OAuth2
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			token			formData	string	true	"The token to revoke"
//	@Param			token_type_hint	formData	string	false	"'refresh_token' or 'access_token' (advisory only)"
//	@Param			client_id		formData	string	true	"OAuth2 client identifier"
//	@Param			client_secret	formData	string	false	"Client secret (confidential clients)"
//	@Success		200				{object}	map[string]interface{}	"Always empty on success"
//	@Failure		401				{object}	map[string]interface{}	"Client authentication failed"
//	@Router			/v1/oauth2/revoke [post]
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.TokenService == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	clientID := strings.TrimSpace(r.Form.Get("client_id"))
	clientSecret := r.Form.Get("client_secret")
	token := strings.TrimSpace(r.Form.Get("token"))

	err := h.TokenService.Revoke(r.Context(), clientID, clientSecret, token)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
		return
	default:
		slogx.FromContext(r.Context()).Error("token revocation failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{})
}
