package usecase

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
)

// VerifyReceipt checks a receipt against a trusted key set. Verification
// failures come back as a result with a reason; only the inputs themselves
// are never in error. The payload hash is re-checked independently before
// the payload is trusted, so a receipt whose payload was swapped fails
// even if its signature field was left intact.
func VerifyReceipt(receipt domain.Receipt, keys domain.KeySet) domain.VerifyResult {
	headerBytes, err := base64.RawURLEncoding.DecodeString(receipt.Protected)
	if err != nil {
		return fail("protected header is not base64url")
	}
	var header domain.Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return fail("protected header is not valid JSON")
	}
	if header.Alg != algES256 {
		return fail("unsupported algorithm")
	}
	if header.KID == "" {
		return fail("missing kid")
	}
	if receipt.KID != "" && receipt.KID != header.KID {
		return fail("kid does not match protected header")
	}

	canonical, err := crypto.Canonicalize(receipt.Payload)
	if err != nil {
		return fail("payload cannot be canonicalized")
	}
	digest := sha256.Sum256(canonical)
	payloadHash := base64.RawURLEncoding.EncodeToString(digest[:])
	if receipt.PayloadJCSSHA256 != "" && receipt.PayloadJCSSHA256 != payloadHash {
		return fail("payload hash mismatch")
	}

	key, ok := resolveKey(keys, header.KID)
	if !ok {
		return fail("no matching key in key set")
	}
	pub, err := key.ECPublicKey()
	if err != nil {
		return fail("matching key is not a valid P-256 key")
	}

	jose, err := base64.RawURLEncoding.DecodeString(receipt.Signature)
	if err != nil {
		return fail("signature is not base64url")
	}
	der, err := crypto.JOSEToDER(jose)
	if err != nil {
		return fail("signature is not a valid JOSE signature")
	}

	signingInput := receipt.Protected + "." + base64.RawURLEncoding.EncodeToString(canonical)
	inputDigest := sha256.Sum256([]byte(signingInput))
	if !ecdsa.VerifyASN1(pub, inputDigest[:], der) {
		return fail("signature verification failed")
	}

	if receipt.ReceiptID != "" {
		compact := signingInput + "." + receipt.Signature
		idDigest := sha256.Sum256([]byte(compact))
		if receipt.ReceiptID != base64.RawURLEncoding.EncodeToString(idDigest[:]) {
			return fail("receipt id mismatch")
		}
	}
	return domain.VerifyResult{OK: true}
}

// resolveKey matches by thumbprint first; the advisory kid member is only
// consulted when no thumbprint matches.
func resolveKey(keys domain.KeySet, kid string) (domain.JWK, bool) {
	for _, key := range keys.Keys {
		tp, err := crypto.Thumbprint(key)
		if err != nil {
			continue
		}
		if tp == kid {
			return key, true
		}
	}
	for _, key := range keys.Keys {
		if key.KID != "" && key.KID == kid {
			return key, true
		}
	}
	return domain.JWK{}, false
}

func fail(reason string) domain.VerifyResult {
	return domain.VerifyResult{Reason: reason}
}
