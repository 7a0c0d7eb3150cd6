package domain

import (
	"slices"
	"time"
)

type Client struct {
	ID           string
	Name         string
	SecretHash   string // empty for public clients
	RedirectURIs []string
	Scopes       []string
	Trusted      bool // first-party client: skips the adult consent prompt, never the minor gate
	Protected    bool // if true, client cannot be deleted (e.g., seed client)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsConfidential returns true when the client authenticates with a secret.
func (c *Client) IsConfidential() bool {
	return c.SecretHash != ""
}

// AllowsRedirectURI performed with exact string comparison; no prefix or
// wildcard matching.
func (c *Client) AllowsRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}
