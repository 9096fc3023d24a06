package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
)

const algES256 = "ES256"

// TimestampMode controls whether issuance requests an RFC 3161 token for
// the payload digest.
type TimestampMode int

const (
	// TimestampOff issues without a token.
	TimestampOff TimestampMode = iota
	// TimestampOptional attaches a token when the authority responds and
	// omits it otherwise.
	TimestampOptional
	// TimestampRequired fails issuance when no token can be obtained.
	TimestampRequired
)

type IssueOptions struct {
	Timestamp TimestampMode
}

// IssueReceipt assembles detached-signature receipts. The kid always comes
// from the signing key's thumbprint, never from the caller.
type IssueReceipt struct {
	Signer     domain.Signer
	Timestamps Timestamper
	Logger     *zap.Logger
}

// Execute canonicalizes the payload, signs the compact signing input and
// returns a complete receipt. It either fully succeeds or fails with one
// classified error; a half-built receipt is never returned.
func (uc *IssueReceipt) Execute(ctx context.Context, payload any, opts IssueOptions) (*domain.Receipt, error) {
	canonical, err := crypto.Canonicalize(payload)
	if err != nil {
		return nil, err
	}
	payloadDigest := sha256.Sum256(canonical)
	payloadHash := base64.RawURLEncoding.EncodeToString(payloadDigest[:])

	headerBytes, err := crypto.Canonicalize(domain.Header{Alg: algES256, KID: uc.Signer.KID()})
	if err != nil {
		return nil, err
	}
	protected := base64.RawURLEncoding.EncodeToString(headerBytes)
	payloadB64 := base64.RawURLEncoding.EncodeToString(canonical)
	signingInput := protected + "." + payloadB64

	der, err := uc.Signer.Sign(ctx, []byte(signingInput))
	if err != nil {
		return nil, err
	}
	jose, err := crypto.DERToJOSE(der, domain.CoordinateSize)
	if err != nil {
		return nil, err
	}
	signature := base64.RawURLEncoding.EncodeToString(jose)

	compact := signingInput + "." + signature
	idDigest := sha256.Sum256([]byte(compact))

	receipt := &domain.Receipt{
		Protected:        protected,
		Payload:          json.RawMessage(canonical),
		Signature:        signature,
		KID:              uc.Signer.KID(),
		PayloadJCSSHA256: payloadHash,
		ReceiptID:        base64.RawURLEncoding.EncodeToString(idDigest[:]),
	}

	if opts.Timestamp != TimestampOff {
		tsr, err := uc.requestTimestamp(ctx, payloadHash, opts.Timestamp)
		if err != nil {
			return nil, err
		}
		receipt.TSR = tsr
	}
	return receipt, nil
}

func (uc *IssueReceipt) requestTimestamp(ctx context.Context, digest string, mode TimestampMode) (string, error) {
	if uc.Timestamps == nil {
		if mode == TimestampRequired {
			return "", fmt.Errorf("no timestamp client configured: %w", domain.ErrTimestampUnavailable)
		}
		return "", nil
	}
	token, err := uc.Timestamps.RequestToken(ctx, digest)
	if err != nil {
		return "", err
	}
	if token == "" {
		if mode == TimestampRequired {
			return "", domain.ErrTimestampUnavailable
		}
		if uc.Logger != nil {
			uc.Logger.Warn("issuing receipt without timestamp token")
		}
	}
	return token, nil
}
