// Package crypto implements the deterministic primitives receipts are
// built from: RFC 8785 canonicalization, the JOSE/DER ECDSA signature
// codec, and RFC 7638 key thumbprints. Everything here is pure and safe
// under unbounded concurrency.
package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"certnode/internal/domain"
)

// maxNestingDepth bounds recursion so cyclic values fail instead of
// overflowing the stack.
const maxNestingDepth = 512

// CanonicalizeJSON parses raw JSON and re-serializes it in RFC 8785
// canonical form. Canonical input is a fixed point.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := ensureEOF(dec); err != nil {
		return nil, err
	}
	return Canonicalize(value)
}

// Canonicalize serializes a JSON-like value in RFC 8785 canonical form.
// The output is a pure function of the logical value: key order, spacing
// and number formatting of the source never matter.
func Canonicalize(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil, bool, string, json.Number, float64, float32,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		map[string]any, []any:
		return appendCanonical(nil, v, 0)
	case json.RawMessage:
		return CanonicalizeJSON([]byte(v))
	case []byte:
		return CanonicalizeJSON(v)
	default:
		// Structs and other marshalable values go through encoding/json
		// first so tags and omitempty apply before canonicalization.
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return CanonicalizeJSON(raw)
	}
}

func ensureEOF(dec *json.Decoder) error {
	var extra any
	if err := dec.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return errors.New("invalid JSON: trailing data")
}

func appendCanonical(dst []byte, value any, depth int) ([]byte, error) {
	if depth > maxNestingDepth {
		return nil, errors.New("value nested too deeply")
	}
	switch v := value.(type) {
	case nil:
		return append(dst, "null"...), nil
	case bool:
		if v {
			return append(dst, "true"...), nil
		}
		return append(dst, "false"...), nil
	case string:
		return appendString(dst, v), nil
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return nil, &domain.FormatError{Field: "number", Reason: err.Error()}
		}
		return appendNumber(dst, f)
	case float64:
		return appendNumber(dst, v)
	case float32:
		return appendNumber(dst, float64(v))
	case int:
		return appendNumber(dst, float64(v))
	case int8:
		return appendNumber(dst, float64(v))
	case int16:
		return appendNumber(dst, float64(v))
	case int32:
		return appendNumber(dst, float64(v))
	case int64:
		return appendNumber(dst, float64(v))
	case uint:
		return appendNumber(dst, float64(v))
	case uint8:
		return appendNumber(dst, float64(v))
	case uint16:
		return appendNumber(dst, float64(v))
	case uint32:
		return appendNumber(dst, float64(v))
	case uint64:
		return appendNumber(dst, float64(v))
	case map[string]any:
		return appendObject(dst, v, depth)
	case []any:
		return appendArray(dst, v, depth)
	default:
		return nil, fmt.Errorf("unsupported JSON type %T", value)
	}
}

// appendObject writes members in strict ascending code-point order of the
// decoded key. sort.Strings compares UTF-8 bytes, which orders equal to
// code points.
func appendObject(dst []byte, obj map[string]any, depth int) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dst = append(dst, '{')
	for i, k := range keys {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendString(dst, k)
		dst = append(dst, ':')
		var err error
		dst, err = appendCanonical(dst, obj[k], depth+1)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, '}'), nil
}

func appendArray(dst []byte, arr []any, depth int) ([]byte, error) {
	dst = append(dst, '[')
	for i, item := range arr {
		if i > 0 {
			dst = append(dst, ',')
		}
		var err error
		dst, err = appendCanonical(dst, item, depth+1)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, ']'), nil
}

const hexDigits = "0123456789abcdef"

// appendString emits the minimal JSON escaping: quote, backslash, the
// short control escapes, and \u00XX for the remaining control range.
func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			dst = append(dst, '\\', byte(r))
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			if r < 0x20 {
				dst = append(dst, '\\', 'u', '0', '0', hexDigits[r>>4], hexDigits[r&0x0f])
			} else {
				dst = utf8AppendRune(dst, r)
			}
		}
	}
	return append(dst, '"')
}

func utf8AppendRune(dst []byte, r rune) []byte {
	return append(dst, string(r)...)
}

// appendNumber renders the shortest round-tripping decimal form with
// ECMAScript Number::toString formatting, as RFC 8785 requires. Positive
// exponents carry an explicit sign ("1e+21"), negative ones do not
// ("1e-7"); the scientific form kicks in outside [1e-6, 1e21).
func appendNumber(dst []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &domain.FormatError{Field: "number", Reason: "non-finite"}
	}
	if f == 0 {
		// Negative zero serializes as 0.
		return append(dst, '0'), nil
	}

	if f < 0 {
		dst = append(dst, '-')
		f = -f
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	cut := strings.IndexByte(sci, 'e')
	exp, err := strconv.Atoi(sci[cut+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid float exponent: %w", err)
	}
	digits := strings.Replace(sci[:cut], ".", "", 1)

	if exp >= 21 || exp <= -7 {
		dst = append(dst, digits[0])
		if len(digits) > 1 {
			dst = append(dst, '.')
			dst = append(dst, digits[1:]...)
		}
		dst = append(dst, 'e')
		if exp >= 0 {
			dst = append(dst, '+')
		}
		return strconv.AppendInt(dst, int64(exp), 10), nil
	}

	point := exp + 1
	switch {
	case point >= len(digits):
		dst = append(dst, digits...)
		for i := len(digits); i < point; i++ {
			dst = append(dst, '0')
		}
	case point <= 0:
		dst = append(dst, '0', '.')
		for i := point; i < 0; i++ {
			dst = append(dst, '0')
		}
		dst = append(dst, digits...)
	default:
		dst = append(dst, digits[:point]...)
		dst = append(dst, '.')
		dst = append(dst, digits[point:]...)
	}
	return dst, nil
}
