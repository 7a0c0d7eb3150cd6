package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
)

type subjectsRepo struct {
	db dbtx
}

const subjectColumns = `id, username, email, password_hash, birthdate, guardian_id,
	character_id, preferred_character_name, appearance_url, traits, libraries,
	totp_secret, created_at, updated_at`

func scanSubject(row scanner) (domain.Subject, error) {
	var (
		s          domain.Subject
		guardianID sql.NullString
		traits     string
		libraries  string
		totpSecret sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.Username, &s.Email, &s.PasswordHash, &s.Birthdate, &guardianID,
		&s.CharacterID, &s.PreferredCharacterName, &s.AppearanceURL, &traits, &libraries,
		&totpSecret, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Subject{}, err
	}
	s.GuardianID = mapNullStringPtr(guardianID)
	s.Traits = decodeStringMap(traits)
	s.Libraries = decodeLibraries(libraries)
	s.TOTPSecret = mapNullStringPtr(totpSecret)
	return s, nil
}

func (r *subjectsRepo) GetSubjectByID(ctx context.Context, id string) (domain.Subject, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE id = ?`, id)
	s, err := scanSubject(row)
	if err != nil {
		return domain.Subject{}, mapNotFound(err)
	}
	return s, nil
}

func (r *subjectsRepo) GetSubjectByUsername(ctx context.Context, username string) (domain.Subject, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE username = ?`, username)
	s, err := scanSubject(row)
	if err != nil {
		return domain.Subject{}, mapNotFound(err)
	}
	return s, nil
}

func (r *subjectsRepo) CreateSubject(ctx context.Context, s domain.Subject) error {
	traits, err := encodeJSON(s.Traits)
	if err != nil {
		return err
	}
	libraries, err := encodeJSON(s.Libraries)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subjects (
			id, username, email, password_hash, birthdate, guardian_id,
			character_id, preferred_character_name, appearance_url, traits, libraries,
			totp_secret, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Username, s.Email, s.PasswordHash, s.Birthdate.UTC(), mapOptionalString(s.GuardianID),
		s.CharacterID, s.PreferredCharacterName, s.AppearanceURL, traits, libraries,
		mapOptionalString(s.TOTPSecret), s.CreatedAt, s.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *subjectsRepo) UpdatePasswordHash(ctx context.Context, subjectID string, newHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), subjectID)
	return err
}

func (r *subjectsRepo) UpdateTOTPSecret(ctx context.Context, subjectID string, secret *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET totp_secret = ?, updated_at = ? WHERE id = ?`,
		mapOptionalString(secret), time.Now().UTC(), subjectID)
	return err
}

func (r *subjectsRepo) DeleteSubject(ctx context.Context, subjectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, subjectID)
	return err
}

func (r *subjectsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
