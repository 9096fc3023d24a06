package soft

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"certnode/internal/config"
	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
)

func TestGenerate_SignAndVerify(t *testing.T) {
	m, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	message := []byte("fallback signing input")
	der, err := m.Sign(context.Background(), message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	pub, err := m.PublicJWK().ECPublicKey()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	digest := sha256.Sum256(message)
	if !ecdsa.VerifyASN1(pub, digest[:], der) {
		t.Fatal("signature does not verify")
	}
}

func TestGenerate_KIDIsThumbprint(t *testing.T) {
	m, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want, err := crypto.Thumbprint(m.PublicJWK())
	if err != nil {
		t.Fatalf("thumbprint: %v", err)
	}
	if m.KID() != want {
		t.Fatalf("kid %s, want thumbprint %s", m.KID(), want)
	}
	if m.PublicJWK().KID != want {
		t.Fatalf("jwk kid %s, want %s", m.PublicJWK().KID, want)
	}
}

func TestNewManagerFromConfig(t *testing.T) {
	seed, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	scalar := make([]byte, domain.CoordinateSize)
	seed.key.D.FillBytes(scalar)

	cfg := config.Config{
		FallbackKeyScalarBase64: base64.RawURLEncoding.EncodeToString(scalar),
	}
	m, err := NewManagerFromConfig(cfg)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if m.KID() != seed.KID() {
		t.Fatalf("reconstructed kid %s, want %s", m.KID(), seed.KID())
	}
}

func TestNewManagerFromConfig_Rejects(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
	}{
		{"unconfigured", config.Config{}},
		{"bad_base64", config.Config{FallbackKeyScalarBase64: "%%%"}},
		{"bad_hex", config.Config{FallbackKeyScalarHex: "zz"}},
		{"short_scalar", config.Config{FallbackKeyScalarHex: "0102"}},
		{"zero_scalar", config.Config{FallbackKeyScalarHex: "0000000000000000000000000000000000000000000000000000000000000000"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManagerFromConfig(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
