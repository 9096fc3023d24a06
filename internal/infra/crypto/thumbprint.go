package crypto

import (
	"crypto/sha256"
	"encoding/base64"

	"certnode/internal/domain"
)

// Thumbprint computes the RFC 7638 thumbprint of an EC P-256 JWK: the
// unpadded base64url SHA-256 of the canonical {crv,kty,x,y} subset. Keys
// that share those members share a thumbprint no matter what else (kid,
// alg, use) they carry. A pre-existing kid member is never an input.
func Thumbprint(key domain.JWK) (string, error) {
	if !key.IsECP256() {
		return "", domain.ErrUnsupportedKeyType
	}
	canonical, err := Canonicalize(map[string]any{
		"crv": key.Crv,
		"kty": key.Kty,
		"x":   key.X,
		"y":   key.Y,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
