package http

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) exchangeCode(client domain.Client, code, verifier string) *url.Values {
	return &url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {client.ID},
		"code":          {code},
		"redirect_uri":  {client.RedirectURIs[0]},
		"code_verifier": {verifier},
	}
}

func TestTokenEndpointCodeExchange(t *testing.T) {
	env := newTestEnv(t)
	adult := env.seedAdult(t, "alice")
	client := env.seedPublicClient(t, []string{domain.ScopeOpenID, domain.ScopeLibraryRead})
	verifier, challenge := pkceChallenge(t)

	code, _ := env.obtainCode(t, client, "alice", []string{domain.ScopeOpenID, domain.ScopeLibraryRead}, challenge)

	rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/token", *env.exchangeCode(client, code, verifier)))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	resp := decodeJSON[authsdk.TokenResponse](t, rec)
	require.Equal(t, "Bearer", resp.TokenType)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotEmpty(t, resp.IDToken)
	require.Equal(t, "openid library.read", resp.Scope)
	require.Greater(t, resp.ExpiresIn, 0)

	claims, err := env.keys.Verifier.Verify(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, adult.ID, claims.Subject)
	require.Equal(t, client.ID, claims.ClientID)
}

func TestTokenEndpointCodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdult(t, "alice")
	client := env.seedPublicClient(t, []string{domain.ScopeOpenID})
	verifier, challenge := pkceChallenge(t)

	code, _ := env.obtainCode(t, client, "alice", []string{domain.ScopeOpenID}, challenge)
	form := *env.exchangeCode(client, code, verifier)

	rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/token", form))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(formRequest(http.MethodPost, "/v1/oauth2/token", form))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_grant", decodeJSON[authsdk.ErrorResponse](t, rec).Error)
}

func TestTokenEndpointRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdult(t, "alice")
	client := env.seedPublicClient(t, []string{domain.ScopeOpenID})
	verifier, challenge := pkceChallenge(t)

	code, _ := env.obtainCode(t, client, "alice", []string{domain.ScopeOpenID}, challenge)
	rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/token", *env.exchangeCode(client, code, verifier)))
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeJSON[authsdk.TokenResponse](t, rec)

	refreshForm := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {client.ID},
		"refresh_token": {first.RefreshToken},
	}
	rec = env.do(formRequest(http.MethodPost, "/v1/oauth2/token", refreshForm))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	rotated := decodeJSON[authsdk.TokenResponse](t, rec)
	require.NotEqual(t, first.RefreshToken, rotated.RefreshToken)

	claims, err := env.keys.Verifier.Verify(rotated.AccessToken)
	require.NoError(t, err)
	require.Contains(t, claims.AMR, jwtx.AMRRefresh)

	// Replaying the predecessor is reuse: the whole family is revoked, so
	// the freshly rotated token dies with it.
	rec = env.do(formRequest(http.MethodPost, "/v1/oauth2/token", refreshForm))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	refreshForm.Set("refresh_token", rotated.RefreshToken)
	rec = env.do(formRequest(http.MethodPost, "/v1/oauth2/token", refreshForm))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_grant", decodeJSON[authsdk.ErrorResponse](t, rec).Error)
}

func TestTokenEndpointUnsupportedGrantType(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {"whoever"},
	}
	rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/token", form))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "unsupported_grant_type", decodeJSON[authsdk.ErrorResponse](t, rec).Error)
}

func TestTokenEndpointRequiresFormEncoding(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(t, http.MethodPost, "/v1/oauth2/token", map[string]string{
		"grant_type": "authorization_code",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", decodeJSON[authsdk.ErrorResponse](t, rec).Error)
}

func TestTokenEndpointRateLimited(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {"whoever"},
	}

	// Strict bucket: five requests pass, the sixth from the same address
	// is throttled.
	for i := 0; i < 5; i++ {
		rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/token", form))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/token", form))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
