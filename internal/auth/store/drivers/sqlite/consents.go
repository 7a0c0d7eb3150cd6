package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
)

type parentalConsentsRepo struct {
	db dbtx
}

const parentalConsentColumns = `id, guardian_id, child_id, client_id, scopes, granted,
	expires_at, revoked_at, created_at, updated_at`

func scanParentalConsent(row scanner) (domain.ParentalConsent, error) {
	var (
		c         domain.ParentalConsent
		scopes    string
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.GuardianID, &c.ChildID, &c.ClientID, &scopes, &c.Granted,
		&expiresAt, &revokedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.ParentalConsent{}, err
	}
	c.Scopes = splitAndFilter(scopes)
	c.ExpiresAt = mapNullTimePtr(expiresAt)
	c.RevokedAt = mapNullTimePtr(revokedAt)
	return c, nil
}

// UpsertParentalConsent overwrites the existing row for the same
// (guardian, child, client) triple. A re-grant clears any prior revocation.
func (r *parentalConsentsRepo) UpsertParentalConsent(ctx context.Context, c domain.ParentalConsent) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO parental_consents (
			id, guardian_id, child_id, client_id, scopes, granted,
			expires_at, revoked_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (guardian_id, child_id, client_id) DO UPDATE SET
			scopes = excluded.scopes,
			granted = excluded.granted,
			expires_at = excluded.expires_at,
			revoked_at = NULL,
			updated_at = excluded.updated_at`,
		c.ID, c.GuardianID, c.ChildID, c.ClientID, joinFields(c.Scopes), c.Granted,
		mapOptionalTime(c.ExpiresAt), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetParentalConsent returns the most recently updated consent for the
// (child, client) pair. Multiple guardians may each hold a row; the latest
// word wins.
func (r *parentalConsentsRepo) GetParentalConsent(ctx context.Context, childID, clientID string) (domain.ParentalConsent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+parentalConsentColumns+` FROM parental_consents
		 WHERE child_id = ? AND client_id = ?
		 ORDER BY updated_at DESC LIMIT 1`,
		childID, clientID)
	c, err := scanParentalConsent(row)
	if err != nil {
		return domain.ParentalConsent{}, mapNotFound(err)
	}
	return c, nil
}

func (r *parentalConsentsRepo) ListConsentsByGuardian(ctx context.Context, guardianID string) ([]domain.ParentalConsent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+parentalConsentColumns+` FROM parental_consents
		 WHERE guardian_id = ? ORDER BY created_at DESC`,
		guardianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ParentalConsent
	for rows.Next() {
		c, err := scanParentalConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RevokeParentalConsent is idempotent: revoking an already-revoked or
// missing consent succeeds without effect.
func (r *parentalConsentsRepo) RevokeParentalConsent(ctx context.Context, guardianID, childID, clientID string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE parental_consents SET revoked_at = ?, updated_at = ?
		 WHERE guardian_id = ? AND child_id = ? AND client_id = ? AND revoked_at IS NULL`,
		now, now, guardianID, childID, clientID)
	return err
}
