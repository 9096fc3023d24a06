package usecase

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
	"certnode/internal/infra/keys/soft"
)

type fakeTimestamper struct {
	token string
	err   error
	calls int
}

func (f *fakeTimestamper) RequestToken(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.token, f.err
}

func newIssuer(t *testing.T) (*IssueReceipt, *soft.Manager) {
	t.Helper()
	key, err := soft.Generate()
	require.NoError(t, err)
	return &IssueReceipt{Signer: key}, key
}

func TestIssueReceipt_EndToEnd(t *testing.T) {
	issuer, key := newIssuer(t)

	payload := map[string]any{"b": 2, "a": 1}
	receipt, err := issuer.Execute(context.Background(), payload, IssueOptions{})
	require.NoError(t, err)

	headerBytes, err := base64.RawURLEncoding.DecodeString(receipt.Protected)
	require.NoError(t, err)
	wantThumb, err := crypto.Thumbprint(key.PublicJWK())
	require.NoError(t, err)
	assert.JSONEq(t, `{"alg":"ES256","kid":"`+wantThumb+`"}`, string(headerBytes))
	assert.Equal(t, wantThumb, receipt.KID)

	canonical, ok := receipt.Payload.(json.RawMessage)
	require.True(t, ok)
	assert.Equal(t, `{"a":1,"b":2}`, string(canonical))

	digest := sha256.Sum256(canonical)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(digest[:]), receipt.PayloadJCSSHA256)

	compact := receipt.Protected + "." + base64.RawURLEncoding.EncodeToString(canonical) + "." + receipt.Signature
	idDigest := sha256.Sum256([]byte(compact))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(idDigest[:]), receipt.ReceiptID)
	assert.Empty(t, receipt.TSR)

	result := VerifyReceipt(*receipt, domain.KeySet{Keys: []domain.JWK{key.PublicJWK()}})
	assert.True(t, result.OK, result.Reason)

	stranger, err := soft.Generate()
	require.NoError(t, err)
	result = VerifyReceipt(*receipt, domain.KeySet{Keys: []domain.JWK{stranger.PublicJWK()}})
	assert.False(t, result.OK)
}

func TestIssueReceipt_SignatureIsJOSEOverSigningInput(t *testing.T) {
	issuer, key := newIssuer(t)
	receipt, err := issuer.Execute(context.Background(), map[string]any{"n": 42}, IssueOptions{})
	require.NoError(t, err)

	jose, err := base64.RawURLEncoding.DecodeString(receipt.Signature)
	require.NoError(t, err)
	require.Len(t, jose, crypto.P256SignatureSize)
	der, err := crypto.JOSEToDER(jose)
	require.NoError(t, err)

	canonical := receipt.Payload.(json.RawMessage)
	signingInput := receipt.Protected + "." + base64.RawURLEncoding.EncodeToString(canonical)
	digest := sha256.Sum256([]byte(signingInput))

	pub, err := key.PublicJWK().ECPublicKey()
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(pub, digest[:], der))
}

func TestIssueReceipt_RejectsBadPayload(t *testing.T) {
	issuer, _ := newIssuer(t)
	_, err := issuer.Execute(context.Background(), map[string]any{"bad": func() {}}, IssueOptions{})
	require.Error(t, err)
}

func TestIssueReceipt_TimestampOptional(t *testing.T) {
	issuer, _ := newIssuer(t)
	ts := &fakeTimestamper{token: "dG9rZW4"}
	issuer.Timestamps = ts

	receipt, err := issuer.Execute(context.Background(), map[string]any{"a": 1}, IssueOptions{Timestamp: TimestampOptional})
	require.NoError(t, err)
	assert.Equal(t, "dG9rZW4", receipt.TSR)
	assert.Equal(t, 1, ts.calls)

	ts.token = ""
	receipt, err = issuer.Execute(context.Background(), map[string]any{"a": 1}, IssueOptions{Timestamp: TimestampOptional})
	require.NoError(t, err)
	assert.Empty(t, receipt.TSR)
}

func TestIssueReceipt_TimestampRequired(t *testing.T) {
	issuer, _ := newIssuer(t)
	issuer.Timestamps = &fakeTimestamper{token: ""}

	_, err := issuer.Execute(context.Background(), map[string]any{"a": 1}, IssueOptions{Timestamp: TimestampRequired})
	require.ErrorIs(t, err, domain.ErrTimestampUnavailable)

	issuer.Timestamps = nil
	_, err = issuer.Execute(context.Background(), map[string]any{"a": 1}, IssueOptions{Timestamp: TimestampRequired})
	require.ErrorIs(t, err, domain.ErrTimestampUnavailable)
}

func TestIssueReceipt_TimestampOffSkipsClient(t *testing.T) {
	issuer, _ := newIssuer(t)
	ts := &fakeTimestamper{token: "dG9rZW4"}
	issuer.Timestamps = ts

	receipt, err := issuer.Execute(context.Background(), map[string]any{"a": 1}, IssueOptions{})
	require.NoError(t, err)
	assert.Empty(t, receipt.TSR)
	assert.Zero(t, ts.calls)
}

func TestIssueReceipt_SignerFailurePropagates(t *testing.T) {
	issuer, _ := newIssuer(t)
	issuer.Signer = failingSigner{}
	_, err := issuer.Execute(context.Background(), map[string]any{"a": 1}, IssueOptions{})
	require.Error(t, err)
	require.True(t, domain.IsTransient(err))
}

type failingSigner struct{}

func (failingSigner) Sign(context.Context, []byte) ([]byte, error) {
	return nil, &domain.TransientError{Op: "kms sign", Err: errors.New("unreachable")}
}

func (failingSigner) KID() string { return "kid" }

func (failingSigner) PublicJWK() domain.JWK { return domain.JWK{} }
