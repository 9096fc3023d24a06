package usecase

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
)

// MakeManifest binds a key set snapshot to a version id. The sha256 member
// is the base64url JCS hash of the whole key set, so any reordering or
// whitespace change in the published JWKS document does not change it.
func MakeManifest(versionID string, keys domain.KeySet, now func() time.Time) (domain.Manifest, error) {
	if versionID == "" {
		return domain.Manifest{}, &domain.FormatError{Field: "versionId", Reason: "must not be empty"}
	}
	canonical, err := crypto.Canonicalize(keys)
	if err != nil {
		return domain.Manifest{}, err
	}
	digest := sha256.Sum256(canonical)
	if now == nil {
		now = time.Now
	}
	return domain.Manifest{
		VersionID: versionID,
		SHA256:    base64.RawURLEncoding.EncodeToString(digest[:]),
		CreatedAt: now().UTC().Format(time.RFC3339),
	}, nil
}

// SignManifest signs the manifest's exact JSON serialization with the
// injected signing function and validates that the returned signature is
// base64url before accepting it.
func SignManifest(manifest domain.Manifest, sign domain.SignFn) (domain.SignedManifest, error) {
	data, err := json.Marshal(manifest)
	if err != nil {
		return domain.SignedManifest{}, err
	}
	sig, err := sign(data)
	if err != nil {
		return domain.SignedManifest{}, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return domain.SignedManifest{}, &domain.FormatError{Field: "sig", Reason: "signing function returned non-base64url signature"}
	}
	if len(raw) != crypto.P256SignatureSize {
		return domain.SignedManifest{}, &domain.FormatError{Field: "sig", Reason: "signing function returned wrong-length signature"}
	}
	return domain.SignedManifest{Manifest: manifest, Sig: sig}, nil
}

// VerifyManifest checks the detached signature over the manifest's own
// fixed-order serialization, the same bytes SignManifest signed. The
// manifest is never re-canonicalized. Format problems are errors; a
// well-formed but wrong signature is (false, nil).
func VerifyManifest(manifest domain.Manifest, sig string, key domain.JWK) (bool, error) {
	pub, err := key.ECPublicKey()
	if err != nil {
		return false, err
	}
	jose, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return false, &domain.FormatError{Field: "sig", Reason: "invalid base64url"}
	}
	der, err := crypto.JOSEToDER(jose)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], der), nil
}
