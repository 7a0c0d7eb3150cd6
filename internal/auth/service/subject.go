package service

import (
	"context"
	"errors"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/slogx"
)

var (
	ErrSubjectNotFound = errors.New("subject not found")
	ErrUsernameTaken   = errors.New("username already taken")

	// ErrGuardianRequired means a child account was registered without a
	// valid adult guardian.
	ErrGuardianRequired = errors.New("guardian required for child accounts")
)

// SubjectService manages subject accounts: guardians and the children
// linked to them.
type SubjectService struct {
	Store    store.Store
	MinorAge int
}

// CreateSubjectRequest carries the inputs for account creation.
type CreateSubjectRequest struct {
	Username   string
	Email      string
	Password   string
	Birthdate  time.Time
	GuardianID *string // required when the birthdate makes the subject a minor

	CharacterID            string
	PreferredCharacterName string
	AppearanceURL          string
	Traits                 map[string]string
	Libraries              []domain.Library
}

// CreateSubject registers a new subject. Minors must name a guardian, and
// the guardian must be an existing adult subject.
func (s *SubjectService) CreateSubject(ctx context.Context, req CreateSubjectRequest) (domain.Subject, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	if req.Username == "" || req.Password == "" || req.Birthdate.IsZero() {
		return domain.Subject{}, ErrInvalidRequest
	}

	subject := domain.Subject{
		ID:                     idx.New().String(),
		Username:               req.Username,
		Email:                  req.Email,
		Birthdate:              req.Birthdate,
		GuardianID:             req.GuardianID,
		CharacterID:            req.CharacterID,
		PreferredCharacterName: req.PreferredCharacterName,
		AppearanceURL:          req.AppearanceURL,
		Traits:                 req.Traits,
		Libraries:              req.Libraries,
	}

	if subject.IsMinor(now, s.minorAge()) {
		if req.GuardianID == nil || *req.GuardianID == "" {
			return domain.Subject{}, ErrGuardianRequired
		}
		guardian, err := s.Store.Subjects().GetSubjectByID(ctx, *req.GuardianID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Subject{}, ErrGuardianRequired
			}
			return domain.Subject{}, err
		}
		if guardian.IsMinor(now, s.minorAge()) {
			return domain.Subject{}, ErrAgeVerificationFailed
		}
	}

	hash, err := cryptox.HashPassword(req.Password)
	if err != nil {
		l.Error("failed to hash password", "error", err)
		return domain.Subject{}, err
	}
	subject.PasswordHash = hash

	if err := s.Store.Subjects().CreateSubject(ctx, subject); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Subject{}, ErrUsernameTaken
		}
		return domain.Subject{}, err
	}

	l.Info("subject created", "subject_id", subject.ID, "is_minor", subject.IsMinor(now, s.minorAge()))
	return subject, nil
}

// GetSubject returns a subject by ID.
func (s *SubjectService) GetSubject(ctx context.Context, subjectID string) (domain.Subject, error) {
	subject, err := s.Store.Subjects().GetSubjectByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Subject{}, ErrSubjectNotFound
		}
		return domain.Subject{}, err
	}
	return subject, nil
}

// ChangePassword verifies the current password before setting a new one.
func (s *SubjectService) ChangePassword(ctx context.Context, subjectID, current, next string) error {
	subject, err := s.GetSubject(ctx, subjectID)
	if err != nil {
		return err
	}

	if cryptox.VerifyPassword(current, subject.PasswordHash) != nil {
		return ErrInvalidCredentials
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return err
	}

	return s.Store.Subjects().UpdatePasswordHash(ctx, subjectID, hash)
}

func (s *SubjectService) minorAge() int {
	if s.MinorAge > 0 {
		return s.MinorAge
	}
	return DefaultMinorAgeThreshold
}
