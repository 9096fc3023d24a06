// Package tsa obtains RFC 3161 timestamp tokens for receipt digests. The
// request body is a minimal TimeStampReq built from hand-encoded DER
// primitives; responses are carried opaquely as base64url.
package tsa

import "fmt"

const (
	tagBoolean     = 0x01
	tagInteger     = 0x02
	tagOctetString = 0x04
	tagNull        = 0x05
	tagOID         = 0x06
	tagSequence    = 0x30
)

func encodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var body []byte
	for v := n; v > 0; v >>= 8 {
		body = append([]byte{byte(v)}, body...)
	}
	return append([]byte{0x80 | byte(len(body))}, body...)
}

func encodeTLV(tag byte, content []byte) []byte {
	out := []byte{tag}
	out = append(out, encodeLength(len(content))...)
	return append(out, content...)
}

// encodeInteger emits a minimal two's-complement INTEGER. A value whose
// leading content byte would have the high bit set gets a 0x00 pad so it
// stays non-negative.
func encodeInteger(v int64) []byte {
	u := uint64(v)
	content := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		content[i] = byte(u)
		u >>= 8
	}
	for len(content) > 1 {
		redundantZero := content[0] == 0x00 && content[1]&0x80 == 0
		redundantFF := content[0] == 0xFF && content[1]&0x80 != 0
		if !redundantZero && !redundantFF {
			break
		}
		content = content[1:]
	}
	return encodeTLV(tagInteger, content)
}

func encodeOID(arcs []int) ([]byte, error) {
	if len(arcs) < 2 || arcs[0] > 2 || (arcs[0] < 2 && arcs[1] >= 40) {
		return nil, fmt.Errorf("invalid oid %v", arcs)
	}
	content := appendBase128(nil, arcs[0]*40+arcs[1])
	for _, arc := range arcs[2:] {
		content = appendBase128(content, arc)
	}
	return encodeTLV(tagOID, content), nil
}

func appendBase128(dst []byte, v int) []byte {
	var tmp []byte
	for {
		tmp = append([]byte{byte(v & 0x7F)}, tmp...)
		v >>= 7
		if v == 0 {
			break
		}
	}
	for i := 0; i < len(tmp)-1; i++ {
		tmp[i] |= 0x80
	}
	return append(dst, tmp...)
}

func encodeOctetString(b []byte) []byte {
	return encodeTLV(tagOctetString, b)
}

func encodeBoolean(v bool) []byte {
	if v {
		return encodeTLV(tagBoolean, []byte{0xFF})
	}
	return encodeTLV(tagBoolean, []byte{0x00})
}

func encodeNull() []byte {
	return []byte{tagNull, 0x00}
}

func encodeSequence(parts ...[]byte) []byte {
	var content []byte
	for _, p := range parts {
		content = append(content, p...)
	}
	return encodeTLV(tagSequence, content)
}
