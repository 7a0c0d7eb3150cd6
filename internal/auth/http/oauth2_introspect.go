package http

import (
	"net/http"
	"strings"

	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/httpx"
	"github.com/fablekids/auth/pkg/slogx"
)

// IntrospectHandler processes RFC 7662 token introspection requests. It goes
// through the token service rather than a bare verifier because opaque
// refresh tokens only exist in the store.
type IntrospectHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP processes token introspection requests.
//
//	@Summary		OAuth2 token introspection endpoint
//	@Description	Returns the state of an access or refresh token per RFC 7662.
//	@Description	Unknown, expired, and revoked tokens all return {"active": false}
//	@Description	with no further detail.
//	@Tags			OAuth2
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Security		BearerAuth
//	@Param			token			formData	string	true	"The token to introspect"
//	@Param			token_type_hint	formData	string	false	"'refresh_token' or 'access_token' (advisory only)"
//	@Success		200				{object}	authsdk.IntrospectionResponse	"Introspection result"
//	@Failure		400				{object}	map[string]interface{}			"Invalid request"
//	@Failure		401				{object}	map[string]interface{}			"Unauthorized"
//	@Router			/v1/oauth2/introspect [post]
func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	token := strings.TrimSpace(r.Form.Get("token"))
	if token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	info, err := h.TokenService.Introspect(r.Context(), token)
	if err != nil {
		slogx.FromContext(r.Context()).Error("token introspection failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	if !info.Active {
		httpx.WriteJSON(w, http.StatusOK, authsdk.IntrospectionResponse{Active: false})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.IntrospectionResponse{
		Active:    true,
		Scope:     info.Scope,
		ClientID:  info.ClientID,
		TokenType: info.TokenType,
		Exp:       info.ExpiresAt,
		Sub:       info.Subject,
	})
}
