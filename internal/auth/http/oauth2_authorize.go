package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/httpx"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/fablekids/auth/pkg/slogx"
)

const sessionCookieName = "fablekids_session"

// AuthorizeHandler processes OAuth2 authorization requests (authorization
// code flow, optionally hybrid "code id_token").
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
	Verifier         jwtx.Verifier
}

// HandleGet processes GET requests to the authorization endpoint.
// This is used when the user's browser is redirected to begin the authorization flow.
//
//	@Summary		OAuth2 authorization endpoint (GET)
//	@Description	Initiates the OAuth2 authorization code flow via GET request. Used for browser redirects.
//	@Description	If a valid session exists (cookie or Bearer token), issues an authorization code immediately.
//	@Description	Otherwise, returns 401 with login_required error.
//	@Description
//	@Description	**PKCE Support:**
//	@Description	- Public clients MUST include code_challenge (method defaults to S256 if omitted)
//	@Description	- Only S256 is accepted; "plain" is rejected
//	@Description
//	@Description	**Parental consent:**
//	@Description	- Requests by minors without active guardian consent return 403 parental_consent_required
//	@Description	- Requests already awaiting a guardian return 403 guardian_approval_pending
//	@Tags			OAuth2
//	@Produce		json
//	@Param			response_type			query		string					true	"'code' or 'code id_token'"	default(code)
//	@Param			client_id				query		string					true	"OAuth2 client identifier"
//	@Param			redirect_uri			query		string					true	"Callback URI (must exactly match a registered redirect URI)"
//	@Param			scope					query		string					false	"Space-delimited list of scopes"	example("openid kid_profile")
//	@Param			state					query		string					false	"Opaque value for CSRF protection (recommended)"
//	@Param			nonce					query		string					false	"OIDC nonce (required for response_type 'code id_token')"
//	@Param			code_challenge			query		string					false	"PKCE code challenge (required for public clients)"
//	@Param			code_challenge_method	query		string					false	"PKCE method (only S256)"	default(S256)	Enums(S256)
//	@Success		302						{string}	string					"Redirect to redirect_uri with code and state"
//	@Failure		400						{object}	map[string]interface{}	"Invalid request"
//	@Failure		401						{object}	map[string]interface{}	"Unauthorized"
//	@Failure		403						{object}	map[string]interface{}	"Parental consent required or pending"
//	@Router			/v1/oauth2/authorize [get]
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.AuthorizeService == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	query := r.URL.Query()
	authReq := h.buildAuthorizeRequest(nil, query)
	if session := h.resolveSession(r); session != nil {
		authReq.Session = session
		h.processAuthorize(w, r, authReq)
		return
	}

	payload := map[string]any{
		"error":             "login_required",
		"error_description": "user authentication required",
		"response_type":     authReq.ResponseType,
		"client_id":         authReq.ClientID,
		"redirect_uri":      authReq.RedirectURI, // Note: not validated yet at this point
	}
	if len(authReq.Scope) > 0 {
		payload["scope"] = strings.Join(authReq.Scope, " ")
	}
	if authReq.State != "" {
		payload["state"] = authReq.State
	}
	httpx.WriteJSON(w, http.StatusUnauthorized, payload)
}

// HandlePost processes POST requests to the authorization endpoint.
// This is used for direct authentication with username/password, or for
// submitting the consent screen (approved=true).
//
//	@Summary		OAuth2 authorization endpoint (POST)
//	@Description	Initiates the OAuth2 authorization code flow via POST request with credentials.
//	@Description	Authentication is by session (cookie or Bearer token) or by username/password in the form body.
//	@Description	Adults using untrusted clients must resubmit with approved=true after the consent screen.
//	@Tags			OAuth2
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			response_type			query		string					true	"'code' or 'code id_token'"	default(code)
//	@Param			client_id				query		string					true	"OAuth2 client identifier"
//	@Param			redirect_uri			query		string					true	"Callback URI (must exactly match a registered redirect URI)"
//	@Param			scope					query		string					false	"Space-delimited list of scopes"
//	@Param			state					query		string					false	"Opaque value for CSRF protection (recommended)"
//	@Param			nonce					query		string					false	"OIDC nonce (required for response_type 'code id_token')"
//	@Param			code_challenge			query		string					false	"PKCE code challenge (required for public clients)"
//	@Param			code_challenge_method	query		string					false	"PKCE method (only S256)"	default(S256)	Enums(S256)
//	@Param			username				formData	string					false	"Username for password authentication"
//	@Param			password				formData	string					false	"Password for password authentication"
//	@Param			approved				formData	string					false	"Set to 'true' when the subject submitted the consent screen"
//	@Success		302						{string}	string					"Redirect to redirect_uri with code and state"
//	@Failure		400						{object}	map[string]interface{}	"Invalid request"
//	@Failure		401						{object}	map[string]interface{}	"Unauthorized"
//	@Failure		403						{object}	map[string]interface{}	"Parental consent required or pending"
//	@Router			/v1/oauth2/authorize [post]
func (h *AuthorizeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if h.AuthorizeService == nil {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	authReq := h.buildAuthorizeRequest(r.Form, r.URL.Query())
	if session := h.resolveSession(r); session != nil {
		authReq.Session = session
	}
	authReq.Username = strings.TrimSpace(r.Form.Get("username"))
	authReq.Password = r.Form.Get("password")
	authReq.Approved = strings.EqualFold(strings.TrimSpace(r.Form.Get("approved")), "true")

	h.processAuthorize(w, r, authReq)
}

func (h *AuthorizeHandler) buildAuthorizeRequest(primary, secondary url.Values) service.AuthorizeRequest {
	pick := func(key string) string {
		if primary != nil {
			if v := strings.TrimSpace(primary.Get(key)); v != "" {
				return v
			}
		}
		if secondary != nil {
			return strings.TrimSpace(secondary.Get(key))
		}
		return ""
	}

	scopeStr := pick("scope")

	return service.AuthorizeRequest{
		ResponseType:        pick("response_type"),
		ClientID:            pick("client_id"),
		RedirectURI:         pick("redirect_uri"),
		Scope:               httpx.ParseSpaceDelimitedFields(scopeStr),
		State:               pick("state"),
		Nonce:               pick("nonce"),
		CodeChallenge:       pick("code_challenge"),
		CodeChallengeMethod: pick("code_challenge_method"),
	}
}

func (h *AuthorizeHandler) processAuthorize(w http.ResponseWriter, r *http.Request, req service.AuthorizeRequest) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	resp, err := h.AuthorizeService.Authorize(ctx, req)
	if err != nil {
		h.handleAuthorizeError(w, r, req, err)
		return
	}

	redirectURL, err := buildAuthorizeRedirect(resp)
	if err != nil {
		log.Error("failed to build redirect URL", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (h *AuthorizeHandler) handleAuthorizeError(w http.ResponseWriter, r *http.Request, req service.AuthorizeRequest, err error) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// The parental-consent pause is not a protocol error: the response
	// carries the resumption token the guardian flow needs, so it is never
	// redirected back to the client.
	var consentErr *service.ConsentRequiredError
	if errors.As(err, &consentErr) {
		consentErr.WriteError(w)
		return
	}
	if errors.Is(err, service.ErrGuardianApprovalPending) {
		authsdk.ErrGuardianApprovalPending.WriteError(w)
		return
	}

	// Per RFC 6749 §3.1.2.3 an invalid or unregistered redirect_uri must
	// never be redirected to; the error is shown to the user directly. The
	// service folds that case into ErrInvalidRequest, and we treat every
	// invalid_request the same way.
	var (
		oauthError *authsdk.OAuth2Error
		errorCode  string
		statusCode int
	)

	switch {
	case errors.Is(err, service.ErrInvalidClient):
		oauthError = authsdk.ErrInvalidClient
	case errors.Is(err, service.ErrInvalidScope):
		oauthError = authsdk.ErrInvalidScope
		errorCode = authsdk.ErrorCodeInvalidScope
	case errors.Is(err, service.ErrInvalidRequest):
		oauthError = authsdk.ErrInvalidRequest
	case errors.Is(err, service.ErrUnsupportedResponseType):
		oauthError = authsdk.ErrUnsupportedResponseType
	case errors.Is(err, service.ErrConsentRequired):
		// Adult + untrusted client: the caller should display the consent
		// screen and resubmit with approved=true.
		oauthError = authsdk.NewOAuth2Error(
			http.StatusForbidden,
			"consent_required",
			"the subject must approve this client's request",
		)
	case errors.Is(err, service.ErrLoginRequired):
		errorCode = "login_required"
		statusCode = http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidCredentials):
		oauthError = authsdk.ErrInvalidGrant
	case errors.Is(err, service.ErrSignerUnavailable):
		oauthError = authsdk.ErrTemporarilyUnavailable
	default:
		log.Error("authorize request failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	// Redirectable OAuth2 errors go back to the client when the redirect
	// target is safe to use (scope errors after the URI already validated).
	if req.RedirectURI != "" && errorCode == authsdk.ErrorCodeInvalidScope {
		if redirectURL := buildErrorRedirect(req.RedirectURI, req.State, errorCode, oauthError); redirectURL != "" {
			http.Redirect(w, r, redirectURL, http.StatusFound)
			return
		}
	}

	if oauthError != nil {
		oauthError.WriteError(w)
		return
	}

	payload := map[string]any{
		"error":             errorCode,
		"error_description": "user authentication is required",
	}
	httpx.WriteJSON(w, statusCode, payload)
}

func (h *AuthorizeHandler) resolveSession(r *http.Request) *service.SessionContext {
	token := extractBearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			token = cookie.Value
		}
	}

	if token == "" {
		return nil
	}

	claims, err := h.Verifier.Verify(token)
	if err != nil {
		slogx.FromContext(r.Context()).Debug("failed to verify session token", "error", err)
		return nil
	}
	if claims.Subject == "" {
		return nil
	}

	return &service.SessionContext{
		SubjectID: claims.Subject,
		SessionID: claims.SID,
		AMR:       claims.AMR,
		Scopes:    claims.Scopes,
	}
}

// buildAuthorizeRedirect constructs the redirect URL for a successful
// authorization. For the hybrid flow the ID token travels in the fragment
// per OIDC; plain code responses use query parameters.
func buildAuthorizeRedirect(resp *service.AuthorizeCodeResponse) (string, error) {
	u, err := url.Parse(resp.RedirectURI)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("code", resp.Code)
	if resp.State != "" {
		params.Set("state", resp.State)
	}

	if resp.IDToken != "" {
		params.Set("id_token", resp.IDToken)
		u.Fragment = params.Encode()
	} else {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// buildErrorRedirect constructs a redirect URL for an OAuth2 error.
// It returns an empty string if the baseURI is invalid.
func buildErrorRedirect(baseURI, state, errorCode string, oauthError *authsdk.OAuth2Error) string {
	u, err := url.Parse(baseURI)
	if err != nil {
		return ""
	}

	q := u.Query()
	q.Set("error", errorCode)
	if oauthError != nil && oauthError.Description != "" {
		q.Set("error_description", oauthError.Description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}
