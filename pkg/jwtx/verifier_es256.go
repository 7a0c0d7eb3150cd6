package jwtx

import (
	"crypto/ecdsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// NewCommonES256 returns a Verifier that accepts ES256 (ECDSA P-256 with
// SHA-256) tokens signed by any key in the set.
func NewCommonES256(keys *KeySet, issuer string, audience []string) Verifier {
	return &keysetVerifier{
		method: jwt.SigningMethodES256,
		keys:   keys,
		issuer: issuer,
		aud:    audience,
		castKey: func(pub any) (any, error) {
			key, ok := pub.(*ecdsa.PublicKey)
			if !ok {
				return nil, errors.New("jwtx: invalid ECDSA key type")
			}
			return key, nil
		},
	}
}
