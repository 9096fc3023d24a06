package domain

// Manifest binds a keyset snapshot's JCS hash to a version id. The JSON
// field order is fixed; signing and verification operate on exactly this
// serialization, never a re-canonicalized one.
type Manifest struct {
	VersionID string `json:"versionId"`
	SHA256    string `json:"sha256"`
	CreatedAt string `json:"createdAt"`
}

// SignedManifest is a manifest with its detached signature.
type SignedManifest struct {
	Manifest Manifest `json:"manifest"`
	Sig      string   `json:"sig"`
}

// SignFn signs raw bytes and returns a base64url JOSE signature. Manifest
// signing takes it as an explicit parameter so callers control which key
// and authority back it.
type SignFn func(data []byte) (string, error)
