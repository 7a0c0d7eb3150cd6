package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/slogx"
)

var (
	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
)

// BootstrapData describes the initial admin guardian and seed client created
// on first run.
type BootstrapData struct {
	AdminUsername  string
	AdminEmail     string
	AdminPassword  string
	AdminBirthdate time.Time

	ClientName         string
	ClientRedirectURIs []string
	ClientScopes       []string
}

// BootstrapService seeds the first guardian account and a protected
// first-party client. It only works on an empty database and requires the
// pre-configured bootstrap token.
type BootstrapService struct {
	Store store.Store
	Token string
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	subjectsEmpty, err := s.Store.Subjects().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	clientsEmpty, err := s.Store.Clients().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !subjectsEmpty && !clientsEmpty, nil
}

// Bootstrap creates the admin guardian and the seed client in one
// transaction. Returns (adminID, clientID, clientSecret); the secret is
// shown exactly once.
func (s *BootstrapService) Bootstrap(
	ctx context.Context,
	token string,
	req BootstrapData,
) (string, string, string, error) {
	l := slogx.FromContext(ctx)

	if bootstrapped, _ := s.IsBootstrapped(ctx); bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return "", "", "", ErrBootstrapAlready
	}

	if token != s.Token {
		l.Warn("unauthorized bootstrap attempt")
		return "", "", "", ErrBootstrapUnauthorized
	}

	passHash, err := cryptox.HashPassword(req.AdminPassword)
	if err != nil {
		l.Error("failed to hash admin password", slog.Any("error", err))
		return "", "", "", err
	}

	clientSecret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		l.Error("failed to generate client secret", slog.Any("error", err))
		return "", "", "", err
	}

	clientSecretHash, err := cryptox.HashPassword(clientSecret)
	if err != nil {
		l.Error("failed to hash client secret", slog.Any("error", err))
		return "", "", "", err
	}

	birthdate := req.AdminBirthdate
	if birthdate.IsZero() {
		// The seed guardian must pass the adult age check.
		birthdate = time.Now().UTC().AddDate(-30, 0, 0)
	}

	scopes := req.ClientScopes
	if len(scopes) == 0 {
		scopes = append(domain.PublicScopes(), domain.ScopeAdminRead, domain.ScopeAdminWrite)
	}

	adminID := idx.New().String()
	clientID := idx.New().String()

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Subjects().CreateSubject(ctx, domain.Subject{
			ID:           adminID,
			Username:     req.AdminUsername,
			Email:        req.AdminEmail,
			PasswordHash: passHash,
			Birthdate:    birthdate,
		}); err != nil {
			l.Error("failed to create admin subject", slog.Any("error", err))
			return err
		}

		if err := tx.Clients().CreateClient(ctx, domain.Client{
			ID:           clientID,
			Name:         req.ClientName,
			SecretHash:   clientSecretHash,
			RedirectURIs: req.ClientRedirectURIs,
			Scopes:       scopes,
			Trusted:      true,
			Protected:    true, // seed client cannot be deleted
		}); err != nil {
			l.Error("failed to create seed client", slog.Any("error", err))
			return err
		}
		return nil
	})
	if err != nil {
		return "", "", "", err
	}

	l.Info("successfully bootstrapped system",
		slog.String("admin_id", adminID),
		slog.String("client_id", clientID),
	)
	return adminID, clientID, clientSecret, nil
}
