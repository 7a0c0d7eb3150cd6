package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/httpx"
	"github.com/fablekids/auth/pkg/slogx"
)

// TokenHandler processes OAuth2 token requests for the authorization_code
// and refresh_token grant types.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP processes OAuth2 token requests.
//
//	@Summary		OAuth2 token endpoint
//	@Description	Exchanges an authorization code or refresh token for an access token.
//	@Description
//	@Description	**Grant types:**
//	@Description	- `authorization_code`: requires code, redirect_uri, and (for PKCE) code_verifier
//	@Description	- `refresh_token`: requires refresh_token; scope may narrow the grant but never widen it
//	@Description
//	@Description	**Client authentication:**
//	@Description	- Confidential clients send client_id and client_secret in the form body
//	@Description	- Public clients send only client_id and rely on PKCE
//	@Description
//	@Description	Refresh tokens rotate on every use. Presenting a revoked refresh token
//	@Description	revokes its entire token family.
//	@Tags			OAuth2
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string					true	"'authorization_code' or 'refresh_token'"
//	@Param			client_id		formData	string					true	"OAuth2 client identifier"
//	@Param			client_secret	formData	string					false	"Client secret (confidential clients)"
//	@Param			code			formData	string					false	"Authorization code (authorization_code grant)"
//	@Param			redirect_uri	formData	string					false	"Must match the redirect_uri used at authorization"
//	@Param			code_verifier	formData	string					false	"PKCE code verifier"
//	@Param			refresh_token	formData	string					false	"Refresh token (refresh_token grant)"
//	@Param			scope			formData	string					false	"Requested scopes (refresh_token grant; subset of original)"
//	@Success		200				{object}	authsdk.TokenResponse	"Token response"
//	@Failure		400				{object}	map[string]interface{}	"Invalid request"
//	@Failure		401				{object}	map[string]interface{}	"Invalid client or grant"
//	@Failure		503				{object}	map[string]interface{}	"No signing key available"
//	@Router			/v1/oauth2/token [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	grantType := strings.TrimSpace(r.Form.Get("grant_type"))
	clientID := strings.TrimSpace(r.Form.Get("client_id"))
	clientSecret := r.Form.Get("client_secret")

	var (
		pair *domain.TokenPair
		err  error
	)

	switch grantType {
	case "authorization_code":
		pair, err = h.TokenService.ExchangeAuthorizationCode(
			r.Context(),
			clientID,
			clientSecret,
			r.Form.Get("code"),
			r.Form.Get("redirect_uri"),
			r.Form.Get("code_verifier"),
		)
	case "refresh_token":
		scopes := httpx.ParseSpaceDelimitedFields(r.Form.Get("scope"))
		pair, err = h.TokenService.ExchangeRefreshToken(
			r.Context(),
			clientID,
			clientSecret,
			r.Form.Get("refresh_token"),
			scopes,
		)
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
		return
	}

	if err != nil {
		h.writeTokenError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		IDToken:      pair.IDToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
		Scope:        pair.Scope,
	})
}

func (h *TokenHandler) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrInvalidGrant):
		authsdk.ErrInvalidGrant.WriteError(w)
	case errors.Is(err, service.ErrInvalidScope):
		authsdk.ErrInvalidScope.WriteError(w)
	case errors.Is(err, service.ErrSignerUnavailable):
		authsdk.ErrTemporarilyUnavailable.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("token exchange failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
