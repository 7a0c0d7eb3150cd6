package jwtx_test

import (
	"testing"
	"time"

	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestEdDSASignAndVerify(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	signer, err := jwtx.NewSignerEdDSA("ed-kid", pemKey)
	require.NoError(t, err)
	require.NoError(t, signer.Validate())
	require.Equal(t, "EdDSA", signer.Alg())

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	verifier := jwtx.NewCommonEdDSA(keyset, "iss", nil)

	t.Run("valid token round trip", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(
			"sub", "sid", "client",
			[]string{"library.read"}, nil,
			time.Minute, "iss", nil, time.Now(),
		)

		token, err := signer.Sign(claims)
		require.NoError(t, err)

		got, err := verifier.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "sub", got.Subject)
		require.Equal(t, []string{"library.read"}, got.Scopes)
	})

	t.Run("tampered token is rejected", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(
			"sub", "sid", "client", nil, nil,
			time.Minute, "iss", nil, time.Now(),
		)
		token, err := signer.Sign(claims)
		require.NoError(t, err)

		_, err = verifier.Verify(token + "x")
		require.Error(t, err)
	})

	t.Run("ES256 key is not Ed25519", func(t *testing.T) {
		esPEM, err := cryptox.GenerateES256Key()
		require.NoError(t, err)

		_, err = jwtx.NewSignerEdDSA("kid", esPEM)
		require.Error(t, err)
	})
}
