package http

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestRevokeUnknownTokenIsSilent(t *testing.T) {
	env := newTestEnv(t)
	client := env.seedPublicClient(t, []string{domain.ScopeOpenID})

	form := url.Values{
		"client_id": {client.ID},
		"token":     {"never-issued"},
	}
	rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/revoke", form))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "{}", rec.Body.String())
}

func TestRevokeRefreshTokenKillsFamily(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdult(t, "alice")
	client := env.seedPublicClient(t, []string{domain.ScopeOpenID})
	verifier, challenge := pkceChallenge(t)

	code, _ := env.obtainCode(t, client, "alice", []string{domain.ScopeOpenID}, challenge)
	rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/token", *env.exchangeCode(client, code, verifier)))
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decodeJSON[authsdk.TokenResponse](t, rec)

	form := url.Values{
		"client_id": {client.ID},
		"token":     {pair.RefreshToken},
	}
	rec = env.do(formRequest(http.MethodPost, "/v1/oauth2/revoke", form))
	require.Equal(t, http.StatusOK, rec.Code)

	// The revoked token no longer refreshes.
	refreshForm := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {client.ID},
		"refresh_token": {pair.RefreshToken},
	}
	rec = env.do(formRequest(http.MethodPost, "/v1/oauth2/token", refreshForm))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_grant", decodeJSON[authsdk.ErrorResponse](t, rec).Error)
}

func TestRevokeConfidentialClientBadSecret(t *testing.T) {
	env := newTestEnv(t)
	client := env.seedConfidentialClient(t, []string{domain.ScopeOpenID})

	form := url.Values{
		"client_id":     {client.ID},
		"client_secret": {"wrong"},
		"token":         {"whatever"},
	}
	rec := env.do(formRequest(http.MethodPost, "/v1/oauth2/revoke", form))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_client", decodeJSON[authsdk.ErrorResponse](t, rec).Error)
}
