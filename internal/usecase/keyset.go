package usecase

import (
	"fmt"

	"certnode/internal/domain"
	"certnode/internal/infra/crypto"
)

// Violation is one structural or cryptographic defect in a key set.
// Validation reports violations as results, not errors, so publication
// tooling can choose block-vs-warn policy.
type Violation struct {
	Code    string `json:"code"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

const (
	ViolationEmptySet          = "empty_set"
	ViolationUnsupportedKey    = "unsupported_key"
	ViolationBadCoordinates    = "bad_coordinates"
	ViolationDuplicateThumb    = "duplicate_thumbprint"
	ViolationDuplicateKID      = "duplicate_kid"
	ViolationNoRotationOverlap = "no_rotation_overlap"
	ViolationIntegrityUpstream = "integrity_failure"
)

type IntegrityResult struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations,omitempty"`
	// Warnings are advisory; duplicate kid members do not fail integrity
	// because the thumbprint is authoritative.
	Warnings []Violation `json:"warnings,omitempty"`
}

type RotationResult struct {
	OK         bool        `json:"ok"`
	Overlap    int         `json:"overlap"`
	Violations []Violation `json:"violations,omitempty"`
}

// CheckIntegrity validates a key set structurally and cryptographically.
// Pure and deterministic.
func CheckIntegrity(keys domain.KeySet) IntegrityResult {
	var result IntegrityResult
	if len(keys.Keys) == 0 {
		result.Violations = append(result.Violations, Violation{
			Code:    ViolationEmptySet,
			Index:   -1,
			Message: "key set has no keys",
		})
		return result
	}

	thumbprints := make(map[string]int, len(keys.Keys))
	kids := make(map[string]int, len(keys.Keys))
	for i, key := range keys.Keys {
		if !key.IsECP256() {
			result.Violations = append(result.Violations, Violation{
				Code:    ViolationUnsupportedKey,
				Index:   i,
				Message: fmt.Sprintf("key %d: kty %q crv %q, want EC P-256", i, key.Kty, key.Crv),
			})
			continue
		}
		if _, _, err := key.Coordinates(); err != nil {
			result.Violations = append(result.Violations, Violation{
				Code:    ViolationBadCoordinates,
				Index:   i,
				Message: fmt.Sprintf("key %d: %v", i, err),
			})
			continue
		}
		tp, err := crypto.Thumbprint(key)
		if err != nil {
			result.Violations = append(result.Violations, Violation{
				Code:    ViolationUnsupportedKey,
				Index:   i,
				Message: fmt.Sprintf("key %d: %v", i, err),
			})
			continue
		}
		if prev, dup := thumbprints[tp]; dup {
			result.Violations = append(result.Violations, Violation{
				Code:    ViolationDuplicateThumb,
				Index:   i,
				Message: fmt.Sprintf("key %d duplicates thumbprint of key %d", i, prev),
			})
		} else {
			thumbprints[tp] = i
		}
		if key.KID != "" {
			if prev, dup := kids[key.KID]; dup {
				result.Warnings = append(result.Warnings, Violation{
					Code:    ViolationDuplicateKID,
					Index:   i,
					Message: fmt.Sprintf("key %d shares advisory kid with key %d", i, prev),
				})
			} else {
				kids[key.KID] = i
			}
		}
	}
	result.OK = len(result.Violations) == 0
	return result
}

// CheckRotation verifies that moving from current to next strands no
// verifier: both sets must pass integrity and share at least one
// thumbprint so receipts issued under the old set stay verifiable
// mid-rollover.
func CheckRotation(current, next domain.KeySet) RotationResult {
	var result RotationResult
	for _, set := range []struct {
		name string
		keys domain.KeySet
	}{{"current", current}, {"next", next}} {
		if integrity := CheckIntegrity(set.keys); !integrity.OK {
			for _, v := range integrity.Violations {
				result.Violations = append(result.Violations, Violation{
					Code:    ViolationIntegrityUpstream,
					Index:   v.Index,
					Message: fmt.Sprintf("%s set: %s", set.name, v.Message),
				})
			}
		}
	}
	if len(result.Violations) > 0 {
		return result
	}

	currentThumbs, err := Thumbprints(current)
	if err != nil {
		result.Violations = append(result.Violations, Violation{
			Code: ViolationIntegrityUpstream, Index: -1, Message: err.Error(),
		})
		return result
	}
	nextThumbs, err := Thumbprints(next)
	if err != nil {
		result.Violations = append(result.Violations, Violation{
			Code: ViolationIntegrityUpstream, Index: -1, Message: err.Error(),
		})
		return result
	}

	seen := make(map[string]struct{}, len(currentThumbs))
	for _, tp := range currentThumbs {
		seen[tp] = struct{}{}
	}
	for _, tp := range nextThumbs {
		if _, ok := seen[tp]; ok {
			result.Overlap++
		}
	}
	if result.Overlap == 0 {
		result.Violations = append(result.Violations, Violation{
			Code:    ViolationNoRotationOverlap,
			Index:   -1,
			Message: "next set shares no thumbprint with current set",
		})
		return result
	}
	result.OK = true
	return result
}

// Thumbprints returns the RFC 7638 thumbprint of every key in order.
func Thumbprints(keys domain.KeySet) ([]string, error) {
	out := make([]string, 0, len(keys.Keys))
	for i, key := range keys.Keys {
		tp, err := crypto.Thumbprint(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		out = append(out, tp)
	}
	return out, nil
}
