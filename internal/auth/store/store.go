package store

import (
	"context"
	"errors"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement this.
// It exposes sub-repositories to keep concerns tidy and testable, and to
// actively stop callers from accidentally nesting transactions.
type Store interface {
	Subjects() Subjects
	Clients() Clients
	RefreshTokens() RefreshTokens
	AuthorizationCodes() AuthorizationCodes
	ParentalConsents() ParentalConsents
	ConsentSessions() ConsentSessions
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Subjects interface {
	// GetSubjectByID returns a subject by id.
	GetSubjectByID(ctx context.Context, id string) (domain.Subject, error)

	// GetSubjectByUsername is used during form authentication.
	GetSubjectByUsername(ctx context.Context, username string) (domain.Subject, error)

	// CreateSubject inserts a new subject (id is provided by app via ULID).
	CreateSubject(ctx context.Context, s domain.Subject) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, subjectID string, newHash string) error

	// UpdateTOTPSecret sets the guardian verification secret (nil clears it).
	UpdateTOTPSecret(ctx context.Context, subjectID string, secret *string) error

	// DeleteSubject cascades to refresh_tokens and codes (per schema).
	DeleteSubject(ctx context.Context, subjectID string) error

	// IsEmpty returns true if there are no subjects.
	IsEmpty(ctx context.Context) (bool, error)
}

type Clients interface {
	// GetClientByID fetches a client during authorize and token grants.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// ListClients returns all clients ordered by creation date (newest first).
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient inserts a new client (id is ULID; secret_hash may be empty
	// for public clients).
	CreateClient(ctx context.Context, c domain.Client) error

	UpdateClientScopes(ctx context.Context, clientID string, scopes []string) error
	UpdateClientRedirectURIs(ctx context.Context, clientID string, uris []string) error

	// DeleteClient cascades to refresh_tokens (per schema).
	DeleteClient(ctx context.Context, clientID string) error

	// IsEmpty returns true if there are no clients.
	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken conditionally flips revoked=1 for a not-yet-revoked
	// token and reports whether this call performed the revocation. A false
	// return means another request got there first.
	RevokeRefreshToken(ctx context.Context, hash string) (bool, error)

	// RevokeRefreshTokenFamily revokes every token sharing a family_id.
	// Used when a revoked token is presented again (theft signal).
	RevokeRefreshTokenFamily(ctx context.Context, familyID string) error

	// RevokeAllSubjectClientRefreshTokens bulk revocation for a subject+client
	// pair (consent revocation cascade).
	RevokeAllSubjectClientRefreshTokens(ctx context.Context, subjectID, clientID string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted authorization code.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// GetAuthorizationCodeByHash fetches a code by its hashed value when redeeming.
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// ConsumeAuthorizationCode atomically marks a code used, but only if it
	// is still unused and unexpired at now. Reports whether this call won the
	// consume; losing a concurrent race returns false, not an error.
	ConsumeAuthorizationCode(ctx context.Context, id string, now time.Time) (bool, error)

	// ExpireSubjectClientAuthorizationCodes force-expires outstanding codes
	// for a subject+client pair (consent revocation cascade).
	ExpireSubjectClientAuthorizationCodes(ctx context.Context, subjectID, clientID string) error

	// DeleteExpiredAuthorizationCodes removes any codes that are no longer valid.
	DeleteExpiredAuthorizationCodes(ctx context.Context) error
}

type ParentalConsents interface {
	// UpsertParentalConsent inserts or overwrites the consent row for
	// (guardian, child, client). Grants are idempotent.
	UpsertParentalConsent(ctx context.Context, c domain.ParentalConsent) error

	// GetParentalConsent fetches the consent row for (child, client).
	GetParentalConsent(ctx context.Context, childID, clientID string) (domain.ParentalConsent, error)

	// ListConsentsByGuardian returns every consent record a guardian holds.
	ListConsentsByGuardian(ctx context.Context, guardianID string) ([]domain.ParentalConsent, error)

	// RevokeParentalConsent sets revoked_at for (guardian, child, client).
	// Idempotent; revoking an already-revoked consent is not an error.
	RevokeParentalConsent(ctx context.Context, guardianID, childID, clientID string) error
}

type ConsentSessions interface {
	// CreateConsentSession stores a paused authorization request.
	CreateConsentSession(ctx context.Context, s domain.ConsentSession) error

	// GetConsentSessionByTokenHash fetches a pending session by resumption
	// token fingerprint (only if not expired).
	GetConsentSessionByTokenHash(ctx context.Context, hash string) (domain.ConsentSession, error)

	// GetPendingConsentSession returns the unexpired session for
	// (child, client) if one exists.
	GetPendingConsentSession(ctx context.Context, childID, clientID string) (domain.ConsentSession, error)

	// DeleteConsentSessionsForChildClient removes pending sessions once a
	// guardian grants (or revokes) consent.
	DeleteConsentSessionsForChildClient(ctx context.Context, childID, clientID string) error

	// DeleteExpiredConsentSessions is housekeeping.
	DeleteExpiredConsentSessions(ctx context.Context) error
}

type SigningKeys interface {
	// CreateSigningKey stores a new signing key with encrypted private key material.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// GetSigningKeyByKid fetches a signing key by its key identifier.
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// ListActiveSigningKeys returns all non-retired, non-expired signing keys
	// ordered by creation date (newest first).
	ListActiveSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// ListAllSigningKeys returns all unexpired signing keys (including
	// retired) ordered by creation date (newest first). Used for verification
	// during the grace period.
	ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// RetireSigningKey marks a key as retired and extends expires_at to
	// retired_at + grace. Retired keys still verify but no longer sign.
	RetireSigningKey(ctx context.Context, kid string, grace time.Duration) error

	// DeleteExpiredSigningKeys removes all keys past expires_at.
	DeleteExpiredSigningKeys(ctx context.Context) error
}
