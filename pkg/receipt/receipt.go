// Package receipt is the public surface of the engine: issuance and
// verification of detached-signature receipts, key-set validation for
// publication tooling, and signed rotation manifests.
package receipt

import (
	"context"
	"encoding/base64"
	"time"

	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
	"certnode/internal/infra/keys/soft"
	"certnode/internal/usecase"
)

type (
	Receipt         = domain.Receipt
	JWK             = domain.JWK
	KeySet          = domain.KeySet
	Manifest        = domain.Manifest
	SignedManifest  = domain.SignedManifest
	SignFn          = domain.SignFn
	Signer          = domain.Signer
	VerifyResult    = domain.VerifyResult
	IssueOptions    = usecase.IssueOptions
	TimestampMode   = usecase.TimestampMode
	IntegrityResult = usecase.IntegrityResult
	RotationResult  = usecase.RotationResult
	Violation       = usecase.Violation
)

const (
	TimestampOff      = usecase.TimestampOff
	TimestampOptional = usecase.TimestampOptional
	TimestampRequired = usecase.TimestampRequired
)

// Issue creates a receipt over payload with the given signer.
func Issue(ctx context.Context, signer Signer, payload any, opts IssueOptions) (*Receipt, error) {
	issuer := &usecase.IssueReceipt{Signer: signer}
	return issuer.Execute(ctx, payload, opts)
}

// IssueWithTimestamps is Issue with a timestamp client attached.
func IssueWithTimestamps(ctx context.Context, signer Signer, timestamps usecase.Timestamper, payload any, opts IssueOptions) (*Receipt, error) {
	issuer := &usecase.IssueReceipt{Signer: signer, Timestamps: timestamps}
	return issuer.Execute(ctx, payload, opts)
}

// Verify checks a receipt against a trusted key set.
func Verify(receipt Receipt, keys KeySet) VerifyResult {
	return usecase.VerifyReceipt(receipt, keys)
}

// CheckIntegrity validates a key set for publication.
func CheckIntegrity(keys KeySet) IntegrityResult {
	return usecase.CheckIntegrity(keys)
}

// CheckRotation validates a current-to-next key set transition.
func CheckRotation(current, next KeySet) RotationResult {
	return usecase.CheckRotation(current, next)
}

// Thumbprint returns the RFC 7638 thumbprint of a public key.
func Thumbprint(key JWK) (string, error) {
	return crypto.Thumbprint(key)
}

// Thumbprints returns the thumbprint of every key in order.
func Thumbprints(keys KeySet) ([]string, error) {
	return usecase.Thumbprints(keys)
}

// MakeManifest binds a key set snapshot to a version id.
func MakeManifest(versionID string, keys KeySet, now func() time.Time) (Manifest, error) {
	return usecase.MakeManifest(versionID, keys, now)
}

// SignManifest signs a manifest with the injected signing function.
func SignManifest(manifest Manifest, sign SignFn) (SignedManifest, error) {
	return usecase.SignManifest(manifest, sign)
}

// VerifyManifest checks a detached manifest signature.
func VerifyManifest(manifest Manifest, sig string, key JWK) (bool, error) {
	return usecase.VerifyManifest(manifest, sig, key)
}

// GenerateKey creates a fresh local P-256 signer for tests and
// development deployments.
func GenerateKey() (Signer, error) {
	return soft.Generate()
}

// SignFnFrom adapts a Signer into the manifest signing function shape.
func SignFnFrom(ctx context.Context, signer Signer) SignFn {
	return func(data []byte) (string, error) {
		der, err := signer.Sign(ctx, data)
		if err != nil {
			return "", err
		}
		jose, err := crypto.DERToJOSE(der, domain.CoordinateSize)
		if err != nil {
			return "", err
		}
		return base64.RawURLEncoding.EncodeToString(jose), nil
	}
}
