package sqlite

import (
	"context"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshTokenColumns = `id, subject_id, client_id, token_hash, family_id, session_id,
	scopes, amr, expires_at, revoked, created_at, updated_at`

func scanRefreshToken(row scanner) (domain.RefreshToken, error) {
	var (
		t      domain.RefreshToken
		scopes string
		amr    string
	)
	err := row.Scan(
		&t.ID, &t.SubjectID, &t.ClientID, &t.TokenHash, &t.FamilyID, &t.SessionID,
		&scopes, &amr, &t.ExpiresAt, &t.Revoked, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	t.Scopes = splitAndFilter(scopes)
	t.AMR = splitAndFilter(amr)
	return t, nil
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			id, subject_id, client_id, token_hash, family_id, session_id,
			scopes, amr, expires_at, revoked, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.SubjectID, t.ClientID, t.TokenHash, t.FamilyID, t.SessionID,
		joinFields(t.Scopes), joinFields(t.AMR), t.ExpiresAt.UTC(), t.CreatedAt, t.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, hash)
	t, err := scanRefreshToken(row)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

// RevokeRefreshToken flips revoked only when the token is not yet revoked.
// A false return means another request revoked it first; the caller decides
// whether that is a theft signal.
func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE token_hash = ? AND revoked = 0`,
		time.Now().UTC(), hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) RevokeRefreshTokenFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE family_id = ? AND revoked = 0`,
		time.Now().UTC(), familyID)
	return err
}

func (r *refreshTokensRepo) RevokeAllSubjectClientRefreshTokens(
	ctx context.Context,
	subjectID, clientID string,
) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE subject_id = ? AND client_id = ? AND revoked = 0`,
		time.Now().UTC(), subjectID, clientID)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
