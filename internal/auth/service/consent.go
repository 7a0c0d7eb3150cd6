package service

import (
	"context"
	"errors"
	"time"

	"github.com/fablekids/auth/internal/auth/audit"
	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

var (
	// ErrAgeVerificationFailed means the would-be guardian did not pass the
	// adult age check.
	ErrAgeVerificationFailed = errors.New("age_verification_failed")

	// ErrNotGuardian means the caller is not the child's registered guardian.
	ErrNotGuardian = errors.New("not_guardian")

	// ErrGuardianVerification means the guardian's one-time code was missing
	// or wrong.
	ErrGuardianVerification = errors.New("guardian_verification_failed")
)

// ConsentService manages parental consents: granting, revoking (with the
// token cascade), and guardian TOTP enrollment for verifiable consent.
type ConsentService struct {
	Store    store.Store
	MinorAge int
	Audit    audit.Sink
}

// GrantConsentRequest carries a guardian's approval of a (child, client,
// scopes) combination.
type GrantConsentRequest struct {
	GuardianID string
	ChildID    string
	ClientID   string
	Scopes     []string
	ExpiresAt  *time.Time // nil = no expiry
	TOTPCode   string     // required when the guardian has TOTP enrolled
}

// GrantConsent records guardian approval. The operation is an idempotent
// upsert: re-granting overwrites scopes and expiry and clears any prior
// revocation. Granting also deletes pending consent sessions for the pair so
// the child's next authorize attempt proceeds cleanly.
func (s *ConsentService) GrantConsent(ctx context.Context, req GrantConsentRequest) (domain.ParentalConsent, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	guardian, err := s.Store.Subjects().GetSubjectByID(ctx, req.GuardianID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ParentalConsent{}, ErrNotGuardian
		}
		return domain.ParentalConsent{}, err
	}

	if guardian.IsMinor(now, s.minorAge()) {
		log.Info("consent grant rejected: guardian failed age check", "guardian_id", guardian.ID)
		return domain.ParentalConsent{}, ErrAgeVerificationFailed
	}

	child, err := s.Store.Subjects().GetSubjectByID(ctx, req.ChildID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ParentalConsent{}, ErrNotGuardian
		}
		return domain.ParentalConsent{}, err
	}

	if !guardian.IsGuardianOf(&child) {
		log.Warn("consent grant rejected: not the registered guardian",
			"guardian_id", guardian.ID,
			"child_id", child.ID,
		)
		return domain.ParentalConsent{}, ErrNotGuardian
	}

	client, err := s.Store.Clients().GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ParentalConsent{}, ErrInvalidClient
		}
		return domain.ParentalConsent{}, err
	}

	scopes := dedupe(req.Scopes)
	if len(scopes) == 0 {
		return domain.ParentalConsent{}, ErrInvalidScope
	}
	for _, scope := range scopes {
		if !domain.KnownScope(scope) {
			return domain.ParentalConsent{}, ErrInvalidScope
		}
	}
	if granted := intersectScopes(scopes, client.Scopes); len(granted) != len(scopes) {
		return domain.ParentalConsent{}, ErrInvalidScope
	}

	// Verifiable parental consent: guardians with TOTP enrolled must prove
	// presence with a fresh code.
	if guardian.TOTPSecret != nil && *guardian.TOTPSecret != "" {
		if req.TOTPCode == "" || !totp.Validate(req.TOTPCode, *guardian.TOTPSecret) {
			log.Info("consent grant rejected: guardian verification failed", "guardian_id", guardian.ID)
			return domain.ParentalConsent{}, ErrGuardianVerification
		}
	}

	consent := domain.ParentalConsent{
		ID:         idx.New().String(),
		GuardianID: guardian.ID,
		ChildID:    child.ID,
		ClientID:   client.ID,
		Scopes:     scopes,
		Granted:    true,
		ExpiresAt:  req.ExpiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ParentalConsents().UpsertParentalConsent(ctx, consent); err != nil {
			return err
		}
		return tx.ConsentSessions().DeleteConsentSessionsForChildClient(ctx, child.ID, client.ID)
	})
	if err != nil {
		return domain.ParentalConsent{}, err
	}

	s.emit(ctx, audit.Record{
		Action:    audit.ActionConsentGranted,
		Actor:     guardian.ID,
		SubjectID: child.ID,
		ClientID:  client.ID,
		Scopes:    scopes,
		At:        now,
	})

	return consent, nil
}

// RevokeConsent withdraws a consent and cascades: in one transaction it sets
// revoked_at, revokes every refresh token the (child, client) pair holds,
// force-expires outstanding authorization codes, and clears pending consent
// sessions. Repeat revocations are no-ops, never errors.
func (s *ConsentService) RevokeConsent(ctx context.Context, guardianID, childID, clientID string) error {
	now := time.Now().UTC()

	guardian, err := s.Store.Subjects().GetSubjectByID(ctx, guardianID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotGuardian
		}
		return err
	}

	child, err := s.Store.Subjects().GetSubjectByID(ctx, childID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotGuardian
		}
		return err
	}

	if !guardian.IsGuardianOf(&child) {
		return ErrNotGuardian
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ParentalConsents().RevokeParentalConsent(ctx, guardianID, childID, clientID); err != nil {
			return err
		}
		if err := tx.RefreshTokens().RevokeAllSubjectClientRefreshTokens(ctx, childID, clientID); err != nil {
			return err
		}
		if err := tx.AuthorizationCodes().ExpireSubjectClientAuthorizationCodes(ctx, childID, clientID); err != nil {
			return err
		}
		return tx.ConsentSessions().DeleteConsentSessionsForChildClient(ctx, childID, clientID)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, audit.Record{
		Action:    audit.ActionConsentRevoked,
		Actor:     guardianID,
		SubjectID: childID,
		ClientID:  clientID,
		At:        now,
	})

	return nil
}

// ListConsents returns every consent record the guardian holds, including
// revoked and expired ones so the guardian dashboard can show history.
func (s *ConsentService) ListConsents(ctx context.Context, guardianID string) ([]domain.ParentalConsent, error) {
	return s.Store.ParentalConsents().ListConsentsByGuardian(ctx, guardianID)
}

// EnrollGuardianTOTP generates and stores a TOTP secret for the guardian.
// Returns the otpauth:// provisioning URL for the guardian's authenticator
// app. Guardians with a secret enrolled must present a valid code on every
// consent grant.
func (s *ConsentService) EnrollGuardianTOTP(ctx context.Context, guardianID string) (string, error) {
	now := time.Now().UTC()

	guardian, err := s.Store.Subjects().GetSubjectByID(ctx, guardianID)
	if err != nil {
		return "", err
	}
	if guardian.IsMinor(now, s.minorAge()) {
		return "", ErrAgeVerificationFailed
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "FableKids",
		AccountName: guardian.Username,
	})
	if err != nil {
		return "", err
	}

	secret := key.Secret()
	if err := s.Store.Subjects().UpdateTOTPSecret(ctx, guardian.ID, &secret); err != nil {
		return "", err
	}

	return key.URL(), nil
}

func (s *ConsentService) minorAge() int {
	if s.MinorAge > 0 {
		return s.MinorAge
	}
	return DefaultMinorAgeThreshold
}

func (s *ConsentService) emit(ctx context.Context, r audit.Record) {
	if s.Audit != nil {
		s.Audit.Emit(ctx, r)
	}
}
