package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fablekids/auth/internal/auth/audit"
	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/jwtx"
)

// KeyRotationService handles JWT signing key rotation for both ephemeral and
// persistent modes. Retired keys stay in the KeySet (and JWKS) until their
// grace period elapses so access and ID tokens signed before the rotation
// keep verifying.
//
// In ephemeral mode (Store == nil) keys live only in the KeyManager and are
// lost on restart. In persistent mode keys are encrypted and stored in the
// database, surviving restarts.
type KeyRotationService struct {
	Store       store.Store      // nil for ephemeral mode
	KeyManager  *jwtx.KeyManager // required for both modes
	Algorithm   string
	GracePeriod time.Duration
	Audit       audit.Sink
}

// RotateKeyRequest represents a request to rotate signing keys.
type RotateKeyRequest struct {
	// RetireExisting will mark current active keys as retired if true.
	// If false, the new key is added alongside existing keys.
	RetireExisting bool
}

// RotateKeyResponse represents the result of a key rotation operation.
type RotateKeyResponse struct {
	NewKey      domain.SigningKey   `json:"new_key"`
	RetiredKeys []domain.SigningKey `json:"retired_keys,omitempty"`
	ActiveKeys  int                 `json:"active_keys"`
}

// RotateKey generates a new signing key and optionally retires existing
// keys. If persistence fails the prior signers keep serving; a rotation
// failure never causes a signing outage.
func (s *KeyRotationService) RotateKey(ctx context.Context, req RotateKeyRequest) (*RotateKeyResponse, error) {
	if s.KeyManager == nil {
		return nil, fmt.Errorf("KeyManager is required")
	}

	kid, err := generateKeyID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key ID: %w", err)
	}

	var pemData []byte
	switch s.Algorithm {
	case jwtx.AlgorithmES256:
		pemData, err = cryptox.GenerateES256Key()
	case jwtx.AlgorithmEdDSA:
		pemData, err = cryptox.GenerateEd25519Key()
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", s.Algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	var signer jwtx.Signer
	switch s.Algorithm {
	case jwtx.AlgorithmES256:
		signer, err = jwtx.NewSignerES256(kid, pemData)
	case jwtx.AlgorithmEdDSA:
		signer, err = jwtx.NewSignerEdDSA(kid, pemData)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now().UTC()
	grace := s.gracePeriod()

	var retiredKeys []domain.SigningKey
	var newKey domain.SigningKey

	if s.Store != nil {
		encryptedKey, err := cryptox.EncryptPrivateKey(pemData)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt private key: %w", err)
		}

		newKey = domain.SigningKey{
			ID:                  idx.New().String(),
			Kid:                 kid,
			Algorithm:           s.Algorithm,
			PrivateKeyEncrypted: encryptedKey,
			CreatedAt:           now,
			ExpiresAt:           now.Add(grace),
		}

		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.SigningKeys().CreateSigningKey(ctx, newKey); err != nil {
				return fmt.Errorf("failed to create new signing key: %w", err)
			}

			if req.RetireExisting {
				activeKeys, err := tx.SigningKeys().ListActiveSigningKeys(ctx)
				if err != nil {
					return fmt.Errorf("failed to list active keys: %w", err)
				}

				for _, key := range activeKeys {
					if key.Kid == newKey.Kid {
						continue
					}

					if err := tx.SigningKeys().RetireSigningKey(ctx, key.Kid, grace); err != nil {
						return fmt.Errorf("failed to retire key %s: %w", key.Kid, err)
					}

					key.RetiredAt = &now
					key.ExpiresAt = now.Add(grace)
					retiredKeys = append(retiredKeys, key)
				}
			}

			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		newKey = domain.SigningKey{
			Kid:       kid,
			Algorithm: s.Algorithm,
			CreatedAt: now,
		}

		if req.RetireExisting {
			for _, current := range s.KeyManager.GetSigners() {
				retiredKeys = append(retiredKeys, domain.SigningKey{
					Kid:       current.KID(),
					Algorithm: s.Algorithm,
					RetiredAt: &now,
				})
			}
		}
	}

	// The new signer goes in before any old ones come out, so signing
	// capacity never drops to zero mid-rotation.
	if err := s.KeyManager.AddSigner(signer); err != nil {
		return nil, fmt.Errorf("failed to add signer to key manager: %w", err)
	}

	for _, key := range retiredKeys {
		// The signer may already be gone from the KeyManager; that is fine.
		_ = s.KeyManager.RetireSignerByKid(key.Kid)
	}

	s.emit(ctx, audit.Record{Action: audit.ActionKeyRotated, At: now})

	return &RotateKeyResponse{
		NewKey:      newKey,
		RetiredKeys: retiredKeys,
		ActiveKeys:  s.KeyManager.NumSigners(),
	}, nil
}

// ListSigningKeys returns all signing keys with their status. In persistent
// mode keys come from the database; in ephemeral mode from the KeyManager.
func (s *KeyRotationService) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	if s.Store != nil {
		return s.Store.SigningKeys().ListAllSigningKeys(ctx)
	}

	if s.KeyManager == nil {
		return nil, fmt.Errorf("KeyManager is required")
	}

	signers := s.KeyManager.GetSigners()
	keys := make([]domain.SigningKey, len(signers))
	for i, signer := range signers {
		keys[i] = domain.SigningKey{
			Kid:       signer.KID(),
			Algorithm: s.Algorithm,
		}
	}

	return keys, nil
}

// RetireKey marks a specific key as retired without generating a new one.
// The key keeps verifying tokens through the grace period.
func (s *KeyRotationService) RetireKey(ctx context.Context, kid string) error {
	if s.KeyManager == nil {
		return fmt.Errorf("KeyManager is required")
	}

	if s.Store != nil {
		key, err := s.Store.SigningKeys().GetSigningKeyByKid(ctx, kid)
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}

		if key.RetiredAt != nil {
			return fmt.Errorf("key %s is already retired", kid)
		}

		if err := s.Store.SigningKeys().RetireSigningKey(ctx, kid, s.gracePeriod()); err != nil {
			return fmt.Errorf("failed to retire key: %w", err)
		}

		_ = s.KeyManager.RetireSignerByKid(kid)
	} else {
		if err := s.KeyManager.RetireSignerByKid(kid); err != nil {
			return fmt.Errorf("failed to retire key: %w", err)
		}
	}

	s.emit(ctx, audit.Record{Action: audit.ActionKeyRetired, At: time.Now().UTC()})
	return nil
}

func (s *KeyRotationService) gracePeriod() time.Duration {
	if s.GracePeriod > 0 {
		return s.GracePeriod
	}
	return 30 * 24 * time.Hour
}

func (s *KeyRotationService) emit(ctx context.Context, r audit.Record) {
	if s.Audit != nil {
		s.Audit.Emit(ctx, r)
	}
}

// generateKeyID generates a random key identifier.
func generateKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("failed to generate random key ID: %w", err)
	}
	return fmt.Sprintf("fablekids-%s", token), nil
}
