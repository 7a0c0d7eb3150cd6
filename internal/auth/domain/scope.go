package domain

// Scopes the server knows about. Write scopes never imply read; the
// scope→claims table in the userinfo service is the single place that
// decides what each scope exposes.
const (
	ScopeOpenID       = "openid"
	ScopeEmail        = "email"
	ScopeKidProfile   = "kid_profile"
	ScopeLibraryRead  = "library.read"
	ScopeLibraryWrite = "library.write"
	ScopeEmotionRead  = "emotion.read"
	ScopeEmotionWrite = "emotion.write"

	// Administrative scopes for first-party tooling
	ScopeAdminRead  = "admin:read"
	ScopeAdminWrite = "admin:write"
)

var knownScopes = map[string]struct{}{
	ScopeOpenID:       {},
	ScopeEmail:        {},
	ScopeKidProfile:   {},
	ScopeLibraryRead:  {},
	ScopeLibraryWrite: {},
	ScopeEmotionRead:  {},
	ScopeEmotionWrite: {},
	ScopeAdminRead:    {},
	ScopeAdminWrite:   {},
}

// KnownScope reports whether s is in the scope registry.
func KnownScope(s string) bool {
	_, ok := knownScopes[s]
	return ok
}

// PublicScopes returns the scopes advertised in discovery metadata.
func PublicScopes() []string {
	return []string{
		ScopeOpenID,
		ScopeEmail,
		ScopeKidProfile,
		ScopeLibraryRead,
		ScopeLibraryWrite,
		ScopeEmotionRead,
		ScopeEmotionWrite,
	}
}
