package domain

import (
	"slices"
	"time"
)

// ParentalConsent records a guardian's approval of a (child, client, scopes)
// combination. One row per (guardian, child, client); re-grants upsert.
type ParentalConsent struct {
	ID         string
	GuardianID string
	ChildID    string
	ClientID   string
	Scopes     []string
	Granted    bool
	ExpiresAt  *time.Time // nil = no expiry
	RevokedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsActive reports whether the consent currently authorizes anything.
func (c *ParentalConsent) IsActive(now time.Time) bool {
	if !c.Granted || c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return true
}

// Covers reports whether every requested scope is within the consented set.
func (c *ParentalConsent) Covers(requested []string) bool {
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

// ConsentSession is the stateless pause record created when a minor's
// authorization request needs guardian approval. The resumption token itself
// is never stored; only its fingerprint.
type ConsentSession struct {
	ID          string
	TokenHash   string
	ChildID     string
	ClientID    string
	Scopes      []string
	RedirectURI string
	State       string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
