package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certnode/internal/domain"
	"certnode/internal/infra/keys/soft"
)

func generateJWKs(t *testing.T, n int) []domain.JWK {
	t.Helper()
	keys := make([]domain.JWK, 0, n)
	for i := 0; i < n; i++ {
		m, err := soft.Generate()
		require.NoError(t, err)
		keys = append(keys, m.PublicJWK())
	}
	return keys
}

func violationCodes(violations []Violation) []string {
	codes := make([]string, 0, len(violations))
	for _, v := range violations {
		codes = append(codes, v.Code)
	}
	return codes
}

func TestCheckIntegrity_OK(t *testing.T) {
	result := CheckIntegrity(domain.KeySet{Keys: generateJWKs(t, 3)})
	assert.True(t, result.OK)
	assert.Empty(t, result.Violations)
	assert.Empty(t, result.Warnings)
}

func TestCheckIntegrity_EmptySet(t *testing.T) {
	result := CheckIntegrity(domain.KeySet{})
	assert.False(t, result.OK)
	assert.Contains(t, violationCodes(result.Violations), ViolationEmptySet)
}

func TestCheckIntegrity_UnsupportedKey(t *testing.T) {
	keys := generateJWKs(t, 1)
	keys = append(keys, domain.JWK{Kty: "RSA", Crv: "", X: "x", Y: "y"})
	result := CheckIntegrity(domain.KeySet{Keys: keys})
	assert.False(t, result.OK)
	assert.Contains(t, violationCodes(result.Violations), ViolationUnsupportedKey)
}

func TestCheckIntegrity_BadCoordinates(t *testing.T) {
	keys := generateJWKs(t, 1)
	bad := keys[0]
	bad.X = "dG9vLXNob3J0"
	result := CheckIntegrity(domain.KeySet{Keys: append(keys, bad)})
	assert.False(t, result.OK)
	assert.Contains(t, violationCodes(result.Violations), ViolationBadCoordinates)
}

func TestCheckIntegrity_DuplicateThumbprintIsHardError(t *testing.T) {
	keys := generateJWKs(t, 1)
	dup := keys[0]
	dup.KID = "relabelled"
	result := CheckIntegrity(domain.KeySet{Keys: append(keys, dup)})
	assert.False(t, result.OK)
	assert.Contains(t, violationCodes(result.Violations), ViolationDuplicateThumb)
}

func TestCheckIntegrity_DuplicateKIDIsWarning(t *testing.T) {
	keys := generateJWKs(t, 2)
	keys[0].KID = "shared"
	keys[1].KID = "shared"
	result := CheckIntegrity(domain.KeySet{Keys: keys})
	assert.True(t, result.OK)
	assert.Contains(t, violationCodes(result.Warnings), ViolationDuplicateKID)
}

func TestCheckRotation_OverlapSucceeds(t *testing.T) {
	keys := generateJWKs(t, 3)
	current := domain.KeySet{Keys: keys[:2]}
	next := domain.KeySet{Keys: keys[1:]}

	result := CheckRotation(current, next)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Overlap)
	assert.Empty(t, result.Violations)
}

func TestCheckRotation_DisjointFails(t *testing.T) {
	keys := generateJWKs(t, 4)
	result := CheckRotation(domain.KeySet{Keys: keys[:2]}, domain.KeySet{Keys: keys[2:]})
	assert.False(t, result.OK)
	assert.Zero(t, result.Overlap)
	assert.Contains(t, violationCodes(result.Violations), ViolationNoRotationOverlap)
}

func TestCheckRotation_EmptyNextFails(t *testing.T) {
	current := domain.KeySet{Keys: generateJWKs(t, 1)}
	result := CheckRotation(current, domain.KeySet{})
	assert.False(t, result.OK)
	assert.Contains(t, violationCodes(result.Violations), ViolationIntegrityUpstream)
}

func TestCheckRotation_BadCurrentFails(t *testing.T) {
	next := domain.KeySet{Keys: generateJWKs(t, 1)}
	bad := domain.KeySet{Keys: []domain.JWK{{Kty: "RSA"}}}
	result := CheckRotation(bad, next)
	assert.False(t, result.OK)
}

func TestThumbprints_Order(t *testing.T) {
	keys := generateJWKs(t, 3)
	thumbs, err := Thumbprints(domain.KeySet{Keys: keys})
	require.NoError(t, err)
	require.Len(t, thumbs, 3)
	for i, key := range keys {
		assert.Equal(t, key.KID, thumbs[i])
	}
}

func TestThumbprints_RejectsUnsupported(t *testing.T) {
	_, err := Thumbprints(domain.KeySet{Keys: []domain.JWK{{Kty: "oct"}}})
	require.Error(t, err)
}
