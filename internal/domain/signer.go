package domain

import "context"

// Signer produces DER ECDSA signatures over SHA-256 of the message with
// a single P-256 key whose identity is its RFC 7638 thumbprint.
type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
	KID() string
	PublicJWK() JWK
}
