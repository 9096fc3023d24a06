package domain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"math/big"
)

// CoordinateSize is the byte length of a P-256 coordinate.
const CoordinateSize = 32

// JWK is an EC public key in JSON Web Key form. Only kty "EC" on curve
// P-256 is supported; kid is advisory and never authoritative.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	KID string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
}

// KeySet is a JWKS document.
type KeySet struct {
	Keys []JWK `json:"keys"`
}

// IsECP256 reports whether the key declares the supported type and curve
// and carries both coordinates.
func (k JWK) IsECP256() bool {
	return k.Kty == "EC" && k.Crv == "P-256" && k.X != "" && k.Y != ""
}

// Coordinates decodes x and y, requiring exactly 32 bytes each.
func (k JWK) Coordinates() ([]byte, []byte, error) {
	if !k.IsECP256() {
		return nil, nil, ErrUnsupportedKeyType
	}
	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, nil, &FormatError{Field: "x", Reason: "invalid base64url"}
	}
	y, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, nil, &FormatError{Field: "y", Reason: "invalid base64url"}
	}
	if len(x) != CoordinateSize {
		return nil, nil, &FormatError{Field: "x", Reason: "coordinate must be 32 bytes"}
	}
	if len(y) != CoordinateSize {
		return nil, nil, &FormatError{Field: "y", Reason: "coordinate must be 32 bytes"}
	}
	return x, y, nil
}

// ECPublicKey builds the ecdsa.PublicKey for the JWK, rejecting points
// that are not on the P-256 curve.
func (k JWK) ECPublicKey() (*ecdsa.PublicKey, error) {
	xBytes, yBytes, err := k.Coordinates()
	if err != nil {
		return nil, err
	}
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, &FormatError{Field: "jwk", Reason: "point not on curve"}
	}
	return pub, nil
}

// JWKFromPublicKey encodes a P-256 public key as a JWK without kid.
func JWKFromPublicKey(pub *ecdsa.PublicKey) (JWK, error) {
	if pub == nil || pub.Curve != elliptic.P256() {
		return JWK{}, ErrUnsupportedKeyType
	}
	var x, y [CoordinateSize]byte
	pub.X.FillBytes(x[:])
	pub.Y.FillBytes(y[:])
	return JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x[:]),
		Y:   base64.RawURLEncoding.EncodeToString(y[:]),
	}, nil
}
