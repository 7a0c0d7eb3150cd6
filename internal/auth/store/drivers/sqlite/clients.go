package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, name, secret_hash, redirect_uris, scopes, trusted, protected, created_at, updated_at`

func scanClient(row scanner) (domain.Client, error) {
	var (
		c            domain.Client
		secretHash   sql.NullString
		redirectURIs string
		scopes       string
	)
	err := row.Scan(
		&c.ID, &c.Name, &secretHash, &redirectURIs, &scopes,
		&c.Trusted, &c.Protected, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Client{}, err
	}
	c.SecretHash = mapNullString(secretHash)
	c.RedirectURIs = decodeStringSlice(redirectURIs)
	c.Scopes = splitAndFilter(scopes)
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	redirectURIs, err := encodeJSON(c.RedirectURIs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO clients (
			id, name, secret_hash, redirect_uris, scopes, trusted, protected, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, mapStringNull(c.SecretHash), redirectURIs, joinFields(c.Scopes),
		c.Trusted, c.Protected, c.CreatedAt, c.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *clientsRepo) UpdateClientScopes(ctx context.Context, clientID string, scopes []string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clients SET scopes = ?, updated_at = ? WHERE id = ?`,
		joinFields(scopes), time.Now().UTC(), clientID)
	return err
}

func (r *clientsRepo) UpdateClientRedirectURIs(ctx context.Context, clientID string, uris []string) error {
	encoded, err := encodeJSON(uris)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE clients SET redirect_uris = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC(), clientID)
	return err
}

func (r *clientsRepo) DeleteClient(ctx context.Context, clientID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM clients WHERE id = ? AND protected = 0`, clientID)
	return err
}

func (r *clientsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
