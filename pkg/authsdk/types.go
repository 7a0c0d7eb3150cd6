package authsdk

import (
	"github.com/fablekids/auth/pkg/jwtx"
)

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses.
// Client code should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// Returned from POST /token for both authorization_code and refresh_token
// grant types.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// IDToken is the OIDC ID token, present when the "openid" scope was granted
	IDToken string `json:"id_token,omitempty"`

	// RefreshToken is the opaque refresh token used to obtain new access tokens
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer" per OAuth2 spec
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}

// IntrospectionResponse represents the RFC 7662 token introspection response.
// When a token is inactive, only the Active field will be false and other
// fields will be empty.
type IntrospectionResponse struct {
	Active bool `json:"active"`

	// Optional fields (only present when active=true)
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Exp       int64    `json:"exp,omitempty"`
	Iat       int64    `json:"iat,omitempty"`
	Nbf       int64    `json:"nbf,omitempty"`
	Sub       string   `json:"sub,omitempty"`
	Aud       []string `json:"aud,omitempty"`
	Iss       string   `json:"iss,omitempty"`
	Jti       string   `json:"jti,omitempty"`
	SessionID string   `json:"sid,omitempty"`
	AMR       []string `json:"amr,omitempty"`
}

// ValidationErrorResponse carries field-level validation failures.
type ValidationErrorResponse struct {
	// Code is the error code (e.g., "validation_error")
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details contains field-specific validation errors (field name: error message)
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Bootstrap Types
// ============================================================================

// BootstrapRequest seeds the first guardian account and the protected
// first-party client. Only usable once, on an empty database, with the
// configured bootstrap token.
type BootstrapRequest struct {
	// AdminUsername is the username for the seed guardian (3-32 chars, alphanumeric with _ or -)
	AdminUsername string `json:"admin_username"`

	// AdminEmail is the guardian's contact email
	AdminEmail string `json:"admin_email"`

	// AdminPassword is the password for the seed guardian (8-128 chars)
	AdminPassword string `json:"admin_password"`

	// AdminBirthdate is the guardian's birthdate, epoch seconds. Zero defaults
	// to an adult birthdate; the seed guardian must pass the adult age check.
	AdminBirthdate int64 `json:"admin_birthdate,omitempty"`

	// ClientName is the name for the seed OAuth2 client (max 100 chars, alphanumeric with _ or -)
	ClientName string `json:"client_name"`

	// ClientRedirectURIs are the seed client's exact redirect URIs (non-empty)
	ClientRedirectURIs []string `json:"client_redirect_uris"`

	// ClientScopes lists the scopes the seed client may request. Empty grants
	// every public scope plus the admin scopes.
	ClientScopes []string `json:"client_scopes,omitempty"`
}

// BootstrapResponse contains the IDs of the created guardian and client.
type BootstrapResponse struct {
	// AdminID is the unique identifier of the seed guardian
	AdminID string `json:"admin_id"`

	// ClientID is the unique identifier of the seed OAuth2 client
	ClientID string `json:"client_id"`

	// ClientSecret is the plaintext secret for the seed client (only returned once)
	ClientSecret string `json:"client_secret"`
}

// ============================================================================
// Subject Types
// ============================================================================

// CreateSubjectRequest registers a new subject account. Accounts whose
// birthdate makes them a minor must name an adult guardian.
type CreateSubjectRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Password  string `json:"password"`
	Birthdate int64  `json:"birthdate"` // epoch seconds

	// GuardianID names the adult guardian, required for minors
	GuardianID string `json:"guardian_id,omitempty"`

	// Profile fields surfaced through the kid_profile scope
	CharacterID            string            `json:"character_id,omitempty"`
	PreferredCharacterName string            `json:"preferred_character_name,omitempty"`
	AppearanceURL          string            `json:"appearance_url,omitempty"`
	Traits                 map[string]string `json:"traits,omitempty"`
}

// CreateSubjectResponse contains the created subject's identifier.
type CreateSubjectResponse struct {
	SubjectID string `json:"subject_id"`
	Username  string `json:"username"`
}

// ============================================================================
// Authorize Types
// ============================================================================

// AuthorizeResponse is the success result of GET /authorize for response_type
// "code" or "code id_token". The server normally responds with a redirect;
// this shape is returned for XHR-style clients that pass response_mode=json.
type AuthorizeResponse struct {
	// Code is the single-use authorization code
	Code string `json:"code"`

	// State echoes the client's state parameter
	State string `json:"state,omitempty"`

	// IDToken is present for response_type "code id_token"
	IDToken string `json:"id_token,omitempty"`
}

// ============================================================================
// UserInfo Types
// ============================================================================

// LibraryInfo describes one story library visible to the subject.
type LibraryInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Writable bool   `json:"writable"`
}

// UserInfoResponse represents the OIDC UserInfo endpoint response.
// Only claims covered by the token's granted scopes are present.
type UserInfoResponse struct {
	// Sub is the subject identifier (always present)
	Sub string `json:"sub"`

	// Email is only present with the "email" scope
	Email string `json:"email,omitempty"`

	// Profile claims, only present with the "kid_profile" scope
	CharacterID            string            `json:"character_id,omitempty"`
	PreferredCharacterName string            `json:"preferred_character_name,omitempty"`
	AppearanceURL          string            `json:"appearance_url,omitempty"`
	Traits                 map[string]string `json:"traits,omitempty"`

	// Libraries is only present with the "library.read" scope
	Libraries []LibraryInfo `json:"libraries,omitempty"`
}

// ============================================================================
// Consent Types
// ============================================================================

// GrantConsentRequest represents a guardian granting consent for a child.
type GrantConsentRequest struct {
	// ChildID identifies the child subject
	ChildID string `json:"child_id"`

	// ClientID identifies the client the consent covers
	ClientID string `json:"client_id"`

	// Scopes the guardian approves
	Scopes []string `json:"scopes"`

	// ExpiresAt optional consent expiry, epoch seconds. Zero means no expiry.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// TOTPCode is the guardian's one-time verification code. Required when
	// the guardian has TOTP verification enrolled.
	TOTPCode string `json:"totp_code,omitempty"`
}

// GrantConsentResponse contains the stored consent record's metadata.
type GrantConsentResponse struct {
	ConsentID string   `json:"consent_id"`
	ChildID   string   `json:"child_id"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expires_at,omitempty"`
}

// RevokeConsentRequest represents a guardian revoking consent for a child.
// Revocation cascades: all refresh tokens and outstanding authorization
// codes for (child, client) are invalidated.
type RevokeConsentRequest struct {
	ChildID  string `json:"child_id"`
	ClientID string `json:"client_id"`
}

// ConsentInfo describes one stored parental consent record.
type ConsentInfo struct {
	ConsentID string   `json:"consent_id"`
	ChildID   string   `json:"child_id"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	Granted   bool     `json:"granted"`
	ExpiresAt int64    `json:"expires_at,omitempty"`
	RevokedAt int64    `json:"revoked_at,omitempty"`
}

// ListConsentsResponse contains the guardian's consent records.
type ListConsentsResponse struct {
	Consents []ConsentInfo `json:"consents"`
}

// ============================================================================
// Discovery Types
// ============================================================================

// DiscoveryDocument is the OIDC provider metadata served at
// /.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint,omitempty"`
	JwksURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes Checks).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Signer indicates the JWT signing capability status
	Signer string `json:"signer"`
}

// ============================================================================
// JWKS Types
// ============================================================================

// JWKSResponse contains the JSON Web Key Set served from
// GET /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Key Rotation Types
// ============================================================================

// RotateKeyRequest represents a request to rotate signing keys.
type RotateKeyRequest struct {
	// RetireExisting will mark current active keys as retired if true.
	// If false, the new key is added alongside existing keys.
	RetireExisting bool `json:"retire_existing"`
}

// SigningKeyInfo represents a JWT signing key with its metadata.
type SigningKeyInfo struct {
	ID        string  `json:"id"`                   // ULID
	Kid       string  `json:"kid"`                  // Key identifier in JWKS
	Algorithm string  `json:"algorithm"`            // ES256 or EdDSA
	CreatedAt string  `json:"created_at"`           // RFC3339 timestamp
	RetiredAt *string `json:"retired_at,omitempty"` // RFC3339 timestamp (null if active)
	ExpiresAt string  `json:"expires_at"`           // RFC3339 timestamp
}

// RotateKeyResponse represents the result of a key rotation operation.
type RotateKeyResponse struct {
	NewKey      SigningKeyInfo   `json:"new_key"`
	RetiredKeys []SigningKeyInfo `json:"retired_keys,omitempty"`
	ActiveKeys  int              `json:"active_keys"`
}

// ============================================================================
// Client Types
// ============================================================================

// CreateClientRequest represents the request to register a new OAuth2 client.
type CreateClientRequest struct {
	// Name is the human-readable name for the client
	Name string `json:"name"`

	// RedirectURIs are the exact redirect URIs the client may use (non-empty)
	RedirectURIs []string `json:"redirect_uris"`

	// Confidential indicates whether to create a confidential client with a
	// secret. If true, a secret will be auto-generated and returned once.
	Confidential bool `json:"confidential"`

	// Scopes is the list of scopes this client is authorized to request
	Scopes []string `json:"scopes"`

	// Trusted marks first-party clients that skip the adult consent prompt.
	// The minor consent gate applies regardless.
	Trusted bool `json:"trusted"`
}

// CreateClientResponse contains the created client's ID and secret (if any).
type CreateClientResponse struct {
	// ClientID is the unique identifier for the created client
	ClientID string `json:"client_id"`

	// ClientSecret is the plaintext secret (only returned once at creation).
	ClientSecret string `json:"client_secret,omitempty"`
}

// ClientInfo represents information about a registered OAuth2 client.
type ClientInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	HasSecret    bool     `json:"has_secret"`
	Trusted      bool     `json:"trusted"`
	Protected    bool     `json:"protected"`
	CreatedAt    string   `json:"created_at"`
}

// ListClientsResponse contains a list of registered OAuth2 clients.
type ListClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}
