package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
)

type signingKeysRepo struct {
	db dbtx
}

const signingKeyColumns = `id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at`

func scanSigningKey(row scanner) (domain.SigningKey, error) {
	var (
		k         domain.SigningKey
		retiredAt sql.NullTime
	)
	err := row.Scan(
		&k.ID, &k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted,
		&k.CreatedAt, &retiredAt, &k.ExpiresAt,
	)
	if err != nil {
		return domain.SigningKey{}, err
	}
	k.RetiredAt = mapNullTimePtr(retiredAt)
	return k, nil
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signing_keys (
			id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Kid, key.Algorithm, key.PrivateKeyEncrypted,
		key.CreatedAt, mapOptionalTime(key.RetiredAt), key.ExpiresAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys WHERE kid = ?`, kid)
	k, err := scanSigningKey(row)
	if err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	return k, nil
}

func (r *signingKeysRepo) ListActiveSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys
		 WHERE retired_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC`,
		time.Now().UTC())
}

func (r *signingKeysRepo) ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys
		 WHERE expires_at > ?
		 ORDER BY created_at DESC`,
		time.Now().UTC())
}

func (r *signingKeysRepo) list(ctx context.Context, query string, args ...any) ([]domain.SigningKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// RetireSigningKey stops a key from signing while leaving it verifiable until
// retired_at + grace; expires_at is rewritten to that deadline.
func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, grace time.Duration) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE signing_keys SET retired_at = ?, expires_at = ? WHERE kid = ? AND retired_at IS NULL`,
		now, now.Add(grace), kid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM signing_keys WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
