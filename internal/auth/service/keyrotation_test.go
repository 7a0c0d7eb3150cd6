package service

import (
	"context"
	"testing"
	"time"

	"github.com/fablekids/auth/internal/auth/audit"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestRotateKeyEphemeral(t *testing.T) {
	km := newTestKeyManager(t)
	svc := &KeyRotationService{
		KeyManager: km,
		Algorithm:  jwtx.AlgorithmEdDSA,
		Audit:      audit.Nop{},
	}
	ctx := context.Background()

	require.Equal(t, 1, km.NumSigners())
	oldKid := km.GetSigners()[0].KID()

	resp, err := svc.RotateKey(ctx, RotateKeyRequest{RetireExisting: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.NewKey.Kid)
	require.NotEqual(t, oldKid, resp.NewKey.Kid)
	require.Len(t, resp.RetiredKeys, 1)
	require.Equal(t, oldKid, resp.RetiredKeys[0].Kid)
	require.Equal(t, 1, resp.ActiveKeys)

	// Tokens signed before the rotation keep verifying: the retired key
	// stays in the keyset for the grace period.
	_, err = km.KeySet.Get(oldKid)
	require.NoError(t, err)
	_, err = km.KeySet.Get(resp.NewKey.Kid)
	require.NoError(t, err)
}

func TestRotateKeyWithoutRetireAddsAlongside(t *testing.T) {
	km := newTestKeyManager(t)
	svc := &KeyRotationService{
		KeyManager: km,
		Algorithm:  jwtx.AlgorithmEdDSA,
		Audit:      audit.Nop{},
	}

	resp, err := svc.RotateKey(context.Background(), RotateKeyRequest{})
	require.NoError(t, err)
	require.Empty(t, resp.RetiredKeys)
	require.Equal(t, 2, resp.ActiveKeys)
}

func TestRotateKeyOldTokensStillVerify(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	tokens := newTokenService(s, km)
	rotation := &KeyRotationService{
		KeyManager: km,
		Algorithm:  jwtx.AlgorithmEdDSA,
		Audit:      audit.Nop{},
	}
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{"openid"})
	code, verifier := issueCode(t, s, km, adult, client, []string{"openid"}, "")

	pair, err := tokens.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	_, err = rotation.RotateKey(ctx, RotateKeyRequest{RetireExisting: true})
	require.NoError(t, err)

	_, err = km.Verifier.Verify(pair.AccessToken)
	require.NoError(t, err, "pre-rotation tokens verify through the grace period")

	refreshed, err := tokens.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, nil)
	require.NoError(t, err)
	_, err = km.Verifier.Verify(refreshed.AccessToken)
	require.NoError(t, err)
}

func TestRotateKeyPersistent(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := &KeyRotationService{
		Store:       s,
		KeyManager:  km,
		Algorithm:   jwtx.AlgorithmEdDSA,
		GracePeriod: 30 * 24 * time.Hour,
		Audit:       audit.Nop{},
	}
	ctx := context.Background()

	first, err := svc.RotateKey(ctx, RotateKeyRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, first.NewKey.PrivateKeyEncrypted)

	second, err := svc.RotateKey(ctx, RotateKeyRequest{RetireExisting: true})
	require.NoError(t, err)
	require.Len(t, second.RetiredKeys, 1)
	require.Equal(t, first.NewKey.Kid, second.RetiredKeys[0].Kid)

	keys, err := svc.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	retired, err := s.SigningKeys().GetSigningKeyByKid(ctx, first.NewKey.Kid)
	require.NoError(t, err)
	require.NotNil(t, retired.RetiredAt)
	require.WithinDuration(t, retired.RetiredAt.Add(svc.GracePeriod), retired.ExpiresAt, 2*time.Second)
}

func TestRetireKey(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := &KeyRotationService{
		Store:      s,
		KeyManager: km,
		Algorithm:  jwtx.AlgorithmEdDSA,
		Audit:      audit.Nop{},
	}
	ctx := context.Background()

	resp, err := svc.RotateKey(ctx, RotateKeyRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.RetireKey(ctx, resp.NewKey.Kid))

	// Retiring twice is an error, not a silent overwrite of the grace window.
	require.Error(t, svc.RetireKey(ctx, resp.NewKey.Kid))
}

func TestRotateKeyRejectsUnknownAlgorithm(t *testing.T) {
	svc := &KeyRotationService{
		KeyManager: newTestKeyManager(t),
		Algorithm:  "RS256",
	}
	_, err := svc.RotateKey(context.Background(), RotateKeyRequest{})
	require.Error(t, err)
}
