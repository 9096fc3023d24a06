package domain

// Receipt is a detached-signature record over an arbitrary JSON payload.
// The signature covers protected || "." || base64url(JCS(payload)); the
// receipt is immutable once issued and any later payload mutation
// invalidates both payload_jcs_sha256 and the signature.
type Receipt struct {
	Protected        string `json:"protected"`
	Payload          any    `json:"payload"`
	Signature        string `json:"signature"`
	KID              string `json:"kid"`
	PayloadJCSSHA256 string `json:"payload_jcs_sha256,omitempty"`
	ReceiptID        string `json:"receipt_id,omitempty"`
	TSR              string `json:"tsr,omitempty"`
}

// Header is the decoded protected header of a receipt.
type Header struct {
	Alg string `json:"alg"`
	KID string `json:"kid"`
}

// VerifyResult reports the outcome of receipt verification. A failed
// verification is a result, not an error.
type VerifyResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}
