package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/pkg/authsdk"
)

// DiscoveryHandler serves the OIDC provider metadata document. The content is
// static per issuer, so caching is allowed.
//
//	@Summary		OpenID Provider Configuration
//	@Description	Returns the OIDC discovery document (provider metadata).
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.DiscoveryDocument	"Provider metadata"
//	@Router			/.well-known/openid-configuration [get].
func DiscoveryHandler(issuer string) http.HandlerFunc {
	issuer = strings.TrimRight(issuer, "/")

	doc := authsdk.DiscoveryDocument{
		Issuer:                           issuer,
		AuthorizationEndpoint:            issuer + "/v1/oauth2/authorize",
		TokenEndpoint:                    issuer + "/v1/oauth2/token",
		UserinfoEndpoint:                 issuer + "/v1/userinfo",
		RevocationEndpoint:               issuer + "/v1/oauth2/revoke",
		IntrospectionEndpoint:            issuer + "/v1/oauth2/introspect",
		JwksURI:                          issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:           []string{"code", "code id_token"},
		GrantTypesSupported:              []string{"authorization_code", "refresh_token"},
		IDTokenSigningAlgValuesSupported: []string{"ES256", "EdDSA"},
		// S256 only; "plain" is rejected at the authorization endpoint.
		CodeChallengeMethodsSupported:     []string{domain.CodeChallengeMethodS256},
		ScopesSupported:                   domain.PublicScopes(),
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
		SubjectTypesSupported:             []string{"public"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(doc)
	}
}
