package crypto

import (
	"fmt"

	"certnode/internal/domain"
)

// P256SignatureSize is the JOSE (IEEE P1363) signature length for ES256:
// r and s as unsigned big-endian values, each left-padded to 32 bytes.
const P256SignatureSize = 2 * domain.CoordinateSize

const (
	derTagInteger  = 0x02
	derTagSequence = 0x30
)

// JOSEToDER converts a fixed-width r‖s signature into an ASN.1 DER
// ECDSA-Sig-Value (SEQUENCE of two minimally encoded INTEGERs).
func JOSEToDER(jose []byte) ([]byte, error) {
	if len(jose) != P256SignatureSize {
		return nil, &domain.FormatError{
			Field:  "signature",
			Reason: fmt.Sprintf("expected %d bytes, got %d", P256SignatureSize, len(jose)),
		}
	}
	r, err := derIntegerContent(jose[:domain.CoordinateSize], "r")
	if err != nil {
		return nil, err
	}
	s, err := derIntegerContent(jose[domain.CoordinateSize:], "s")
	if err != nil {
		return nil, err
	}

	// Content is at most 2*(2+33) bytes, so the sequence length is always
	// short form.
	der := make([]byte, 0, 6+len(r)+len(s))
	der = append(der, derTagSequence, byte(4+len(r)+len(s)))
	der = append(der, derTagInteger, byte(len(r)))
	der = append(der, r...)
	der = append(der, derTagInteger, byte(len(s)))
	der = append(der, s...)
	return der, nil
}

// derIntegerContent strips leading zeros and applies the DER minimal
// two's-complement rule: one 0x00 pad only when the high bit is set.
func derIntegerContent(raw []byte, field string) ([]byte, error) {
	i := 0
	for i < len(raw) && raw[i] == 0 {
		i++
	}
	if i == len(raw) {
		return nil, &domain.FormatError{Field: field, Reason: "integer is zero"}
	}
	trimmed := raw[i:]
	if trimmed[0]&0x80 != 0 {
		out := make([]byte, 0, len(trimmed)+1)
		out = append(out, 0x00)
		return append(out, trimmed...), nil
	}
	return append([]byte(nil), trimmed...), nil
}

// DERToJOSE converts an ASN.1 DER ECDSA-Sig-Value into the fixed-width
// r‖s form with size-byte components. Non-minimal, negative, zero or
// oversized integers and trailing bytes are rejected.
func DERToJOSE(der []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, &domain.FormatError{Field: "size", Reason: "must be positive"}
	}
	if len(der) < 2 {
		return nil, &domain.FormatError{Field: "signature", Reason: "DER too short"}
	}
	if der[0] != derTagSequence {
		return nil, &domain.FormatError{Field: "signature", Reason: "not a DER SEQUENCE"}
	}
	seqLen := int(der[1])
	if seqLen&0x80 != 0 {
		// P-256 signatures never need long-form lengths; DER forbids
		// long form for lengths under 128 anyway.
		return nil, &domain.FormatError{Field: "signature", Reason: "long-form length not allowed"}
	}
	content := der[2:]
	if len(content) != seqLen {
		return nil, &domain.FormatError{Field: "signature", Reason: "sequence length mismatch"}
	}

	r, rest, err := parseDERInteger(content, size, "r")
	if err != nil {
		return nil, err
	}
	s, rest, err := parseDERInteger(rest, size, "s")
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, &domain.FormatError{Field: "signature", Reason: "trailing bytes"}
	}

	jose := make([]byte, 2*size)
	copy(jose[size-len(r):size], r)
	copy(jose[2*size-len(s):], s)
	return jose, nil
}

// parseDERInteger reads one INTEGER and returns its unsigned magnitude.
func parseDERInteger(in []byte, size int, field string) ([]byte, []byte, error) {
	if len(in) < 2 {
		return nil, nil, &domain.FormatError{Field: field, Reason: "truncated integer"}
	}
	if in[0] != derTagInteger {
		return nil, nil, &domain.FormatError{Field: field, Reason: "not a DER INTEGER"}
	}
	n := int(in[1])
	if n&0x80 != 0 {
		return nil, nil, &domain.FormatError{Field: field, Reason: "long-form length not allowed"}
	}
	if n == 0 || len(in) < 2+n {
		return nil, nil, &domain.FormatError{Field: field, Reason: "truncated integer"}
	}
	val := in[2 : 2+n]
	if val[0]&0x80 != 0 {
		return nil, nil, &domain.FormatError{Field: field, Reason: "negative integer"}
	}
	if val[0] == 0 {
		if n == 1 {
			return nil, nil, &domain.FormatError{Field: field, Reason: "integer is zero"}
		}
		if val[1]&0x80 == 0 {
			return nil, nil, &domain.FormatError{Field: field, Reason: "non-minimal integer"}
		}
		val = val[1:]
	}
	if len(val) > size {
		return nil, nil, &domain.FormatError{Field: field, Reason: "integer too large"}
	}
	return val, in[2+n:], nil
}
