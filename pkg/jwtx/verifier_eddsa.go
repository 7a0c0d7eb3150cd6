package jwtx

import (
	"crypto/ed25519"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// NewCommonEdDSA returns a Verifier that accepts EdDSA (Ed25519) tokens
// signed by any key in the set.
func NewCommonEdDSA(keys *KeySet, issuer string, audience []string) Verifier {
	return &keysetVerifier{
		method: jwt.SigningMethodEdDSA,
		keys:   keys,
		issuer: issuer,
		aud:    audience,
		castKey: func(pub any) (any, error) {
			key, ok := pub.(ed25519.PublicKey)
			if !ok {
				return nil, errors.New("jwtx: invalid Ed25519 key type")
			}
			return key, nil
		},
	}
}
