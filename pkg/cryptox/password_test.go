package cryptox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	SetPepperPath(filepath.Join(t.TempDir(), "pepper.key"))

	t.Run("hash and verify round trip", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery staple")
		require.NoError(t, err)

		ok, err := VerifyPassword("correct horse battery staple", hash)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("wrong password fails verification", func(t *testing.T) {
		hash, err := HashPassword("hunter2")
		require.NoError(t, err)

		ok, err := VerifyPassword("hunter3", hash)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("hashes are salted", func(t *testing.T) {
		h1, err := HashPassword("same input")
		require.NoError(t, err)
		h2, err := HashPassword("same input")
		require.NoError(t, err)
		require.NotEqual(t, h1, h2)
	})

	t.Run("malformed hash is rejected", func(t *testing.T) {
		_, err := VerifyPassword("anything", "not-a-phc-string")
		require.Error(t, err)
	})
}
