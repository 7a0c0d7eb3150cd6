package http

import (
	"net/http"
	"testing"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestUserInfoRequiresBearer(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(t, http.MethodGet, "/v1/userinfo", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestUserInfoRequiresOpenIDScope(t *testing.T) {
	env := newTestEnv(t)
	adult := env.seedAdult(t, "alice")
	client := env.seedPublicClient(t, []string{domain.ScopeLibraryRead})

	req := jsonRequest(t, http.MethodGet, "/v1/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+env.mintAccessToken(t, adult.ID, client.ID, []string{domain.ScopeLibraryRead}))

	rec := env.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
}

func TestUserInfoScopeFiltering(t *testing.T) {
	env := newTestEnv(t)
	guardian := env.seedAdult(t, "gwen")
	child := env.seedChild(t, "timmy", guardian.ID)
	client := env.seedPublicClient(t, domain.PublicScopes())

	t.Run("openid only yields sub alone", func(t *testing.T) {
		req := jsonRequest(t, http.MethodGet, "/v1/userinfo", nil)
		req.Header.Set("Authorization", "Bearer "+env.mintAccessToken(t, child.ID, client.ID, []string{domain.ScopeOpenID}))

		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
		claims := decodeJSON[map[string]any](t, rec)
		require.Equal(t, child.ID, claims["sub"])
		require.NotContains(t, claims, "email")
		require.NotContains(t, claims, "character_id")
	})

	t.Run("kid_profile adds character claims", func(t *testing.T) {
		scopes := []string{domain.ScopeOpenID, domain.ScopeKidProfile, domain.ScopeLibraryRead}
		req := jsonRequest(t, http.MethodGet, "/v1/userinfo", nil)
		req.Header.Set("Authorization", "Bearer "+env.mintAccessToken(t, child.ID, client.ID, scopes))

		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
		claims := decodeJSON[map[string]any](t, rec)
		require.Equal(t, "Juniper the Fox", claims["preferred_character_name"])
		require.Equal(t, "char_fox_02", claims["character_id"])
		require.Contains(t, claims, "libraries")
	})
}
