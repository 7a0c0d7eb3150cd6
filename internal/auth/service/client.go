package service

import (
	"context"
	"errors"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/slogx"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrClientProtected = errors.New("client is protected and cannot be deleted")
)

type ClientService struct {
	Store store.Store
}

// CreateClient registers a new OAuth2 client. If confidential is true, a
// secure secret is generated and returned in plaintext exactly once.
// Redirect URIs are matched exactly at authorize time, so they must be
// complete URLs.
func (s *ClientService) CreateClient(
	ctx context.Context,
	name string,
	redirectURIs []string,
	confidential bool,
	scopes []string,
	trusted bool,
) (clientID string, plaintextSecret string, err error) {
	l := slogx.FromContext(ctx)

	if len(redirectURIs) == 0 {
		return "", "", ErrInvalidRequest
	}
	for _, scope := range scopes {
		if !domain.KnownScope(scope) {
			return "", "", ErrInvalidScope
		}
	}

	var secretHash string
	if confidential {
		secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			l.Error("failed to generate client secret", "error", err)
			return "", "", err
		}
		plaintextSecret = secret

		secretHash, err = cryptox.HashPassword(secret)
		if err != nil {
			l.Error("failed to hash client secret", "error", err)
			return "", "", err
		}
	}

	clientID = idx.New().String()

	err = s.Store.Clients().CreateClient(ctx, domain.Client{
		ID:           clientID,
		Name:         name,
		SecretHash:   secretHash,
		RedirectURIs: redirectURIs,
		Scopes:       dedupe(scopes),
		Trusted:      trusted,
		Protected:    false,
	})
	if err != nil {
		l.Error("failed to create client", "error", err)
		return "", "", err
	}

	l.Info("client created successfully", "client_id", clientID, "name", name, "has_secret", confidential)
	return clientID, plaintextSecret, nil
}

// ListClients returns all OAuth2 clients.
func (s *ClientService) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.Store.Clients().ListClients(ctx)
}

// GetClient returns a single client by ID.
func (s *ClientService) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrClientNotFound
		}
		return domain.Client{}, err
	}
	return client, nil
}

// UpdateRedirectURIs replaces a client's registered redirect URIs.
func (s *ClientService) UpdateRedirectURIs(ctx context.Context, clientID string, uris []string) error {
	if len(uris) == 0 {
		return ErrInvalidRequest
	}
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return err
	}
	return s.Store.Clients().UpdateClientRedirectURIs(ctx, clientID, uris)
}

// DeleteClient removes a client. Protected clients (e.g. the seed client)
// cannot be deleted.
func (s *ClientService) DeleteClient(ctx context.Context, clientID string) error {
	l := slogx.FromContext(ctx)

	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClientNotFound
		}
		return err
	}

	if client.Protected {
		l.Warn("attempted to delete protected client", "client_id", clientID)
		return ErrClientProtected
	}

	if err := s.Store.Clients().DeleteClient(ctx, clientID); err != nil {
		l.Error("failed to delete client", "error", err, "client_id", clientID)
		return err
	}

	l.Info("client deleted successfully", "client_id", clientID)
	return nil
}
