package tsa

import (
	"certnode/internal/domain"
)

// id-sha256, 2.16.840.1.101.3.4.2.1
var sha256OID = []int{2, 16, 840, 1, 101, 3, 4, 2, 1}

const digestSize = 32

// BuildTimeStampReq encodes a minimal RFC 3161 TimeStampReq for a SHA-256
// digest: version 1, a MessageImprint naming id-sha256 with an absent
// parameter encoded as NULL, and certReq true so the authority embeds its
// certificate in the token.
func BuildTimeStampReq(digest []byte) ([]byte, error) {
	if len(digest) != digestSize {
		return nil, &domain.FormatError{Field: "digest", Reason: "must be 32 bytes"}
	}
	oid, err := encodeOID(sha256OID)
	if err != nil {
		return nil, err
	}
	algorithm := encodeSequence(oid, encodeNull())
	imprint := encodeSequence(algorithm, encodeOctetString(digest))
	return encodeSequence(encodeInteger(1), imprint, encodeBoolean(true)), nil
}
