package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
	"certnode/internal/infra/keys/soft"
)

func issueTestReceipt(t *testing.T) (domain.Receipt, domain.KeySet) {
	t.Helper()
	key, err := soft.Generate()
	require.NoError(t, err)
	issuer := &IssueReceipt{Signer: key}
	receipt, err := issuer.Execute(context.Background(), map[string]any{"a": 1, "b": 2}, IssueOptions{})
	require.NoError(t, err)
	return *receipt, domain.KeySet{Keys: []domain.JWK{key.PublicJWK()}}
}

func TestVerifyReceipt_TamperDetection(t *testing.T) {
	receipt, keys := issueTestReceipt(t)
	require.True(t, VerifyReceipt(receipt, keys).OK)

	t.Run("payload", func(t *testing.T) {
		tampered := receipt
		tampered.Payload = json.RawMessage(`{"a":1,"b":3}`)
		assert.False(t, VerifyReceipt(tampered, keys).OK)
	})

	t.Run("payload_and_hash", func(t *testing.T) {
		// Attacker swaps the payload and fixes up the hash; the signature
		// still fails.
		tampered := receipt
		payload := json.RawMessage(`{"a":1,"b":3}`)
		digest := sha256.Sum256(payload)
		tampered.Payload = payload
		tampered.PayloadJCSSHA256 = base64.RawURLEncoding.EncodeToString(digest[:])
		assert.False(t, VerifyReceipt(tampered, keys).OK)
	})

	t.Run("signature", func(t *testing.T) {
		tampered := receipt
		jose, err := base64.RawURLEncoding.DecodeString(tampered.Signature)
		require.NoError(t, err)
		jose[10] ^= 0x01
		tampered.Signature = base64.RawURLEncoding.EncodeToString(jose)
		assert.False(t, VerifyReceipt(tampered, keys).OK)
	})

	t.Run("protected", func(t *testing.T) {
		tampered := receipt
		header, err := crypto.Canonicalize(domain.Header{Alg: "ES256", KID: "someone-else"})
		require.NoError(t, err)
		tampered.Protected = base64.RawURLEncoding.EncodeToString(header)
		assert.False(t, VerifyReceipt(tampered, keys).OK)
	})
}

func TestVerifyReceipt_MalformedInputs(t *testing.T) {
	receipt, keys := issueTestReceipt(t)

	cases := []struct {
		name   string
		mutate func(r *domain.Receipt)
	}{
		{"protected_not_base64", func(r *domain.Receipt) { r.Protected = "%%%" }},
		{"protected_not_json", func(r *domain.Receipt) {
			r.Protected = base64.RawURLEncoding.EncodeToString([]byte("not json"))
		}},
		{"unsupported_alg", func(r *domain.Receipt) {
			header, _ := crypto.Canonicalize(domain.Header{Alg: "RS256", KID: r.KID})
			r.Protected = base64.RawURLEncoding.EncodeToString(header)
		}},
		{"missing_kid", func(r *domain.Receipt) {
			header, _ := crypto.Canonicalize(domain.Header{Alg: "ES256"})
			r.Protected = base64.RawURLEncoding.EncodeToString(header)
		}},
		{"kid_mismatch", func(r *domain.Receipt) { r.KID = "some-other-kid" }},
		{"receipt_id_mismatch", func(r *domain.Receipt) { r.ReceiptID = "bm90LXRoZS1pZA" }},
		{"signature_not_base64", func(r *domain.Receipt) { r.Signature = "%%%" }},
		{"signature_wrong_length", func(r *domain.Receipt) {
			r.Signature = base64.RawURLEncoding.EncodeToString([]byte("short"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tampered := receipt
			tc.mutate(&tampered)
			result := VerifyReceipt(tampered, keys)
			assert.False(t, result.OK)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestVerifyReceipt_AdvisoryKIDFallback(t *testing.T) {
	key, err := soft.Generate()
	require.NoError(t, err)

	// A receipt whose header kid is a label rather than a thumbprint still
	// verifies when a key in the set carries that label.
	header, err := crypto.Canonicalize(domain.Header{Alg: "ES256", KID: "signing-2024"})
	require.NoError(t, err)
	protected := base64.RawURLEncoding.EncodeToString(header)
	payload := json.RawMessage(`{"a":1}`)
	signingInput := protected + "." + base64.RawURLEncoding.EncodeToString(payload)

	der, err := key.Sign(context.Background(), []byte(signingInput))
	require.NoError(t, err)
	jose, err := crypto.DERToJOSE(der, domain.CoordinateSize)
	require.NoError(t, err)

	jwk := key.PublicJWK()
	jwk.KID = "signing-2024"
	receipt := domain.Receipt{
		Protected: protected,
		Payload:   payload,
		Signature: base64.RawURLEncoding.EncodeToString(jose),
		KID:       "signing-2024",
	}

	result := VerifyReceipt(receipt, domain.KeySet{Keys: []domain.JWK{jwk}})
	assert.True(t, result.OK, result.Reason)

	jwk.KID = "other-label"
	result = VerifyReceipt(receipt, domain.KeySet{Keys: []domain.JWK{jwk}})
	assert.False(t, result.OK)
}

func TestVerifyReceipt_EmptyKeySet(t *testing.T) {
	receipt, _ := issueTestReceipt(t)
	result := VerifyReceipt(receipt, domain.KeySet{})
	assert.False(t, result.OK)
}
