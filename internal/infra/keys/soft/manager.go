// Package soft holds locally generated or configured P-256 keys. It backs
// the signing service's explicit fallback path and test keys; production
// signing goes through the external authority.
package soft

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"

	"certnode/internal/config"
	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
)

type Manager struct {
	key *ecdsa.PrivateKey
	jwk domain.JWK
	kid string
}

// NewManager wraps an existing P-256 private key.
func NewManager(key *ecdsa.PrivateKey) (*Manager, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, domain.ErrUnsupportedKeyType
	}
	jwk, err := domain.JWKFromPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	kid, err := crypto.Thumbprint(jwk)
	if err != nil {
		return nil, err
	}
	jwk.KID = kid
	return &Manager{key: key, jwk: jwk, kid: kid}, nil
}

// Generate creates a fresh P-256 keypair with its thumbprint as kid.
func Generate() (*Manager, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewManager(key)
}

// NewManagerFromConfig loads the fallback key scalar from configuration,
// accepting base64url or hex encodings of the 32-byte value.
func NewManagerFromConfig(cfg config.Config) (*Manager, error) {
	raw, err := readScalar(cfg)
	if err != nil {
		return nil, err
	}
	key, err := privateKeyFromScalar(raw)
	if err != nil {
		return nil, err
	}
	return NewManager(key)
}

func (m *Manager) Sign(_ context.Context, message []byte) ([]byte, error) {
	if m == nil || m.key == nil {
		return nil, errors.New("soft key not configured")
	}
	digest := sha256.Sum256(message)
	return ecdsa.SignASN1(rand.Reader, m.key, digest[:])
}

func (m *Manager) KID() string { return m.kid }

func (m *Manager) PublicJWK() domain.JWK { return m.jwk }

func readScalar(cfg config.Config) ([]byte, error) {
	if cfg.FallbackKeyScalarBase64 != "" {
		raw, err := base64.RawURLEncoding.DecodeString(cfg.FallbackKeyScalarBase64)
		if err != nil {
			return nil, &domain.FormatError{Field: "fallback_key_scalar_base64", Reason: "invalid base64url"}
		}
		return raw, nil
	}
	if cfg.FallbackKeyScalarHex != "" {
		raw, err := hex.DecodeString(cfg.FallbackKeyScalarHex)
		if err != nil {
			return nil, &domain.FormatError{Field: "fallback_key_scalar_hex", Reason: "invalid hex"}
		}
		return raw, nil
	}
	return nil, errors.New("fallback key scalar is not configured")
}

func privateKeyFromScalar(raw []byte) (*ecdsa.PrivateKey, error) {
	if len(raw) != domain.CoordinateSize {
		return nil, &domain.FormatError{Field: "fallback_key_scalar", Reason: "scalar must be 32 bytes"}
	}
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, &domain.FormatError{Field: "fallback_key_scalar", Reason: "scalar out of range"}
	}
	key := &ecdsa.PrivateKey{D: d}
	key.Curve = curve
	key.X, key.Y = curve.ScalarBaseMult(raw)
	return key, nil
}
