package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
)

type authorizationCodesRepo struct {
	db dbtx
}

const authorizationCodeColumns = `id, subject_id, client_id, code_hash, redirect_uri, scopes,
	nonce, session_id, amr, code_challenge, code_challenge_method, expires_at, used_at, created_at`

func scanAuthorizationCode(row scanner) (domain.AuthorizationCode, error) {
	var (
		c      domain.AuthorizationCode
		scopes string
		amr    string
		usedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.SubjectID, &c.ClientID, &c.CodeHash, &c.RedirectURI, &scopes,
		&c.Nonce, &c.SessionID, &amr, &c.CodeChallenge, &c.CodeChallengeMethod,
		&c.ExpiresAt, &usedAt, &c.CreatedAt,
	)
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	c.Scopes = splitAndFilter(scopes)
	c.AMR = splitAndFilter(amr)
	c.UsedAt = mapNullTimePtr(usedAt)
	return c, nil
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (
			id, subject_id, client_id, code_hash, redirect_uri, scopes,
			nonce, session_id, amr, code_challenge, code_challenge_method,
			expires_at, used_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		code.ID, code.SubjectID, code.ClientID, code.CodeHash, code.RedirectURI, joinFields(code.Scopes),
		code.Nonce, code.SessionID, joinFields(code.AMR), code.CodeChallenge, code.CodeChallengeMethod,
		code.ExpiresAt.UTC(), code.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+authorizationCodeColumns+` FROM authorization_codes WHERE code_hash = ?`, hash)
	c, err := scanAuthorizationCode(row)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	return c, nil
}

// ConsumeAuthorizationCode marks a code used with a conditional update so two
// concurrent redemptions cannot both win. The loser sees zero rows affected.
func (r *authorizationCodesRepo) ConsumeAuthorizationCode(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE authorization_codes SET used_at = ? WHERE id = ? AND used_at IS NULL AND expires_at > ?`,
		now.UTC(), id, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *authorizationCodesRepo) ExpireSubjectClientAuthorizationCodes(
	ctx context.Context,
	subjectID, clientID string,
) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE authorization_codes SET expires_at = ? WHERE subject_id = ? AND client_id = ? AND used_at IS NULL AND expires_at > ?`,
		now, subjectID, clientID, now)
	return err
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE expires_at <= ? OR used_at IS NOT NULL`, time.Now().UTC())
	return err
}
