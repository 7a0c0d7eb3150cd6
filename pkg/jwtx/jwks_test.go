package jwtx_test

import (
	"encoding/json"
	"testing"

	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestJWKSRoundTrip(t *testing.T) {
	esPEM, err := cryptox.GenerateES256Key()
	require.NoError(t, err)
	esSigner, err := jwtx.NewSignerES256("es-kid", esPEM)
	require.NoError(t, err)

	edPEM, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	edSigner, err := jwtx.NewSignerEdDSA("ed-kid", edPEM)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(esSigner))
	require.NoError(t, keyset.AddSigner(edSigner))

	t.Run("published JWKS parses back into a keyset", func(t *testing.T) {
		jwks := keyset.PublicJWKS()
		require.Len(t, jwks.Keys, 2)

		data, err := json.Marshal(jwks)
		require.NoError(t, err)

		var decoded jwtx.JWKS
		require.NoError(t, json.Unmarshal(data, &decoded))

		fresh := jwtx.NewKeySet()
		require.NoError(t, fresh.ResetFromJWKS(decoded))

		_, err = fresh.Get("es-kid")
		require.NoError(t, err)
		_, err = fresh.Get("ed-kid")
		require.NoError(t, err)
	})

	t.Run("ES256 JWK coordinates are padded to 32 bytes", func(t *testing.T) {
		jwk := esSigner.PublicJWK()
		require.Equal(t, "EC", jwk.Kty)
		require.Equal(t, "P-256", jwk.Crv)
		// 32 bytes base64url without padding is 43 characters.
		require.Len(t, jwk.X, 43)
		require.Len(t, jwk.Y, 43)
	})

	t.Run("RemoveKid drops key from lookup and JWKS", func(t *testing.T) {
		keyset.RemoveKid("ed-kid")

		_, err := keyset.Get("ed-kid")
		require.ErrorIs(t, err, jwtx.ErrNoKey)
		require.Len(t, keyset.PublicJWKS().Keys, 1)
	})

	t.Run("JWK converts to PEM", func(t *testing.T) {
		pemStr, err := esSigner.PublicJWK().PEM()
		require.NoError(t, err)
		require.Contains(t, pemStr, "BEGIN PUBLIC KEY")
	})

	t.Run("unsupported kty is rejected", func(t *testing.T) {
		bad := jwtx.JWK{Kty: "RSA", Kid: "rsa-kid"}
		require.Error(t, keyset.AddJWK(bad))
	})
}
