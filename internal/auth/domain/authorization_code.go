package domain

import "time"

// CodeChallengeMethodS256 is the only PKCE challenge method the server
// accepts; "plain" is rejected.
const CodeChallengeMethodS256 = "S256"

// MaxAuthorizationCodeTTL caps authorization code lifetimes.
const MaxAuthorizationCodeTTL = 60 * time.Second

// AuthorizationCode represents an OAuth 2.1 authorization code issuance.
// The code itself is never stored; only its fingerprint.
type AuthorizationCode struct {
	ID                  string
	SubjectID           string
	ClientID            string
	CodeHash            string
	RedirectURI         string
	Scopes              []string
	Nonce               string
	SessionID           string
	AMR                 []string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}
