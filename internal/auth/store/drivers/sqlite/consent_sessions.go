package sqlite

import (
	"context"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
)

type consentSessionsRepo struct {
	db dbtx
}

const consentSessionColumns = `id, token_hash, child_id, client_id, scopes, redirect_uri, state, expires_at, created_at`

func scanConsentSession(row scanner) (domain.ConsentSession, error) {
	var (
		s      domain.ConsentSession
		scopes string
	)
	err := row.Scan(
		&s.ID, &s.TokenHash, &s.ChildID, &s.ClientID, &scopes,
		&s.RedirectURI, &s.State, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		return domain.ConsentSession{}, err
	}
	s.Scopes = splitAndFilter(scopes)
	return s, nil
}

func (r *consentSessionsRepo) CreateConsentSession(ctx context.Context, s domain.ConsentSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consent_sessions (
			id, token_hash, child_id, client_id, scopes, redirect_uri, state, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TokenHash, s.ChildID, s.ClientID, joinFields(s.Scopes),
		s.RedirectURI, s.State, s.ExpiresAt.UTC(), s.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *consentSessionsRepo) GetConsentSessionByTokenHash(ctx context.Context, hash string) (domain.ConsentSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+consentSessionColumns+` FROM consent_sessions
		 WHERE token_hash = ? AND expires_at > ?`,
		hash, time.Now().UTC())
	s, err := scanConsentSession(row)
	if err != nil {
		return domain.ConsentSession{}, mapNotFound(err)
	}
	return s, nil
}

func (r *consentSessionsRepo) GetPendingConsentSession(ctx context.Context, childID, clientID string) (domain.ConsentSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+consentSessionColumns+` FROM consent_sessions
		 WHERE child_id = ? AND client_id = ? AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 1`,
		childID, clientID, time.Now().UTC())
	s, err := scanConsentSession(row)
	if err != nil {
		return domain.ConsentSession{}, mapNotFound(err)
	}
	return s, nil
}

func (r *consentSessionsRepo) DeleteConsentSessionsForChildClient(ctx context.Context, childID, clientID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM consent_sessions WHERE child_id = ? AND client_id = ?`,
		childID, clientID)
	return err
}

func (r *consentSessionsRepo) DeleteExpiredConsentSessions(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM consent_sessions WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
