package jwtx_test

import (
	"testing"
	"time"

	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestClaimsValidation(t *testing.T) {
	now := time.Now()

	t.Run("issuer", func(t *testing.T) {
		c := jwtx.NewAccessClaims("sub", "sid", "client", nil, nil, time.Minute, "good-iss", nil, now)

		require.NoError(t, c.ValidateIssuer("good-iss"))
		require.NoError(t, c.ValidateIssuer("")) // nothing to enforce
		require.ErrorIs(t, c.ValidateIssuer("bad-iss"), jwtx.ErrIssuer)
	})

	t.Run("audience", func(t *testing.T) {
		c := jwtx.NewAccessClaims("sub", "sid", "client", nil, nil, time.Minute, "iss", []string{"a", "b"}, now)

		require.NoError(t, c.ValidateAudience([]string{"b"}))
		require.NoError(t, c.ValidateAudience(nil))
		require.ErrorIs(t, c.ValidateAudience([]string{"c"}), jwtx.ErrAudience)
	})

	t.Run("expiry", func(t *testing.T) {
		fresh := jwtx.NewAccessClaims("sub", "sid", "client", nil, nil, time.Minute, "iss", nil, now)
		require.NoError(t, fresh.ValidateExpiry())

		stale := jwtx.NewAccessClaims("sub", "sid", "client", nil, nil, time.Minute, "iss", nil, now.Add(-2*time.Minute))
		require.ErrorIs(t, stale.ValidateExpiry(), jwtx.ErrExpired)

		future := jwtx.NewAccessClaims("sub", "sid", "client", nil, nil, time.Minute, "iss", nil, now.Add(time.Hour))
		require.ErrorIs(t, future.ValidateExpiry(), jwtx.ErrNotYetValid)
	})

	t.Run("expiry with leeway", func(t *testing.T) {
		// Expired 10 seconds ago; 30s leeway should let it pass.
		c := jwtx.NewAccessClaims("sub", "sid", "client", nil, nil, time.Minute, "iss", nil, now.Add(-70*time.Second))
		require.ErrorIs(t, c.ValidateExpiry(), jwtx.ErrExpired)
		require.NoError(t, c.ValidateExpiryWithLeeway(30*time.Second))
	})

	t.Run("jti is unique", func(t *testing.T) {
		a := jwtx.NewJTI()
		b := jwtx.NewJTI()
		require.NotEmpty(t, a)
		require.NotEqual(t, a, b)
	})
}
