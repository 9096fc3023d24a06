package usecase

import "context"

// Timestamper exchanges a base64url SHA-256 digest for a timestamp token.
// An empty token with a nil error means the authority was unavailable.
type Timestamper interface {
	RequestToken(ctx context.Context, digestB64 string) (string, error)
}
