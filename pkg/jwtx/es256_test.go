package jwtx_test

import (
	"testing"
	"time"

	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestES256SignAndVerify(t *testing.T) {
	pemKey, err := cryptox.GenerateES256Key()
	require.NoError(t, err)

	signer, err := jwtx.NewSignerES256("test-kid", pemKey)
	require.NoError(t, err)
	require.NoError(t, signer.Validate())
	require.Equal(t, "ES256", signer.Alg())
	require.Equal(t, "test-kid", signer.KID())

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	verifier := jwtx.NewCommonES256(keyset, "iss", []string{"aud"})

	t.Run("valid token round trip", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(
			"sub", "sid", "client",
			[]string{"openid", "kid_profile"}, []string{"pwd"},
			time.Minute, "iss", []string{"aud"}, time.Now(),
		)

		token, err := signer.Sign(claims)
		require.NoError(t, err)

		got, err := verifier.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "sub", got.Subject)
		require.Equal(t, "sid", got.SID)
		require.Equal(t, []string{"openid", "kid_profile"}, got.Scopes)
		require.NotEmpty(t, got.ID, "jti should be set")
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(
			"sub", "sid", "client", nil, nil,
			-time.Minute, "iss", []string{"aud"}, time.Now().Add(-2*time.Minute),
		)

		token, err := signer.Sign(claims)
		require.NoError(t, err)

		_, err = verifier.Verify(token)
		require.Error(t, err)
	})

	t.Run("wrong issuer is rejected", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(
			"sub", "sid", "client", nil, nil,
			time.Minute, "someone-else", []string{"aud"}, time.Now(),
		)

		token, err := signer.Sign(claims)
		require.NoError(t, err)

		_, err = verifier.Verify(token)
		require.Error(t, err)
	})

	t.Run("unknown kid is rejected", func(t *testing.T) {
		otherPEM, err := cryptox.GenerateES256Key()
		require.NoError(t, err)
		other, err := jwtx.NewSignerES256("other-kid", otherPEM)
		require.NoError(t, err)

		claims := jwtx.NewAccessClaims(
			"sub", "sid", "client", nil, nil,
			time.Minute, "iss", []string{"aud"}, time.Now(),
		)
		token, err := other.Sign(claims)
		require.NoError(t, err)

		_, err = verifier.Verify(token)
		require.Error(t, err)
	})

	t.Run("SignRaw produces a verifiable id token", func(t *testing.T) {
		now := time.Now()
		raw := jwt.MapClaims{
			"iss":   "iss",
			"sub":   "sub",
			"aud":   "aud",
			"iat":   now.Unix(),
			"exp":   now.Add(time.Minute).Unix(),
			"nonce": "n-abc",
		}

		token, err := signer.SignRaw(raw)
		require.NoError(t, err)

		got, err := verifier.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "n-abc", got.Nonce)
	})
}

func TestES256SignerRejectsBadKeys(t *testing.T) {
	t.Run("garbage PEM", func(t *testing.T) {
		_, err := jwtx.NewSignerES256("kid", []byte("not a key"))
		require.Error(t, err)
	})

	t.Run("Ed25519 key is not ECDSA", func(t *testing.T) {
		pemKey, err := cryptox.GenerateEd25519Key()
		require.NoError(t, err)

		_, err = jwtx.NewSignerES256("kid", pemKey)
		require.Error(t, err)
	})
}
