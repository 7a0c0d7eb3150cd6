package domain

import "time"

// TokenPair represents what the token endpoint returns: the short-lived
// access token (JWT), the opaque refresh token, and the ID token when the
// "openid" scope was granted.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	IDToken      string        `json:"id_token,omitempty"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until expiry
	Scope        string        `json:"scope,omitempty"`      // space-delimited
}

// Introspection is the RFC 7662 view of a token. Inactive tokens carry only
// Active=false; every other field stays zero.
type Introspection struct {
	Active    bool   `json:"active"`
	TokenType string `json:"token_type,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// RefreshToken models the stored refresh token record in the DB.
// FamilyID groups every descendant of one original grant; reuse of a revoked
// member revokes the whole family.
type RefreshToken struct {
	ID        string
	SubjectID string
	ClientID  string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	FamilyID  string
	SessionID string // Session ID (SID) that persists across rotations
	Scopes    []string
	AMR       []string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
