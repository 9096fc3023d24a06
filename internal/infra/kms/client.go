// Package kms is the HTTP client for the external signing authority. It
// performs single attempts only; retry, breaker and fallback policy live
// in the signer service.
package kms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"certnode/internal/domain"
)

const signingAlg = "ECDSA_SHA_256"

type Client struct {
	addr       string
	token      string
	httpClient *http.Client
}

func New(addr, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		addr:       strings.TrimRight(addr, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Sign asks the authority for a raw ECDSA signature over the given
// SHA-256 digest and returns the DER signature bytes. Reachability
// failures come back as TransientError; an unknown or misconfigured key
// is permanent and surfaces on first occurrence.
func (c *Client) Sign(ctx context.Context, keyID string, digest []byte) ([]byte, error) {
	if c == nil || c.addr == "" {
		return nil, errors.New("kms client not configured")
	}
	if keyID == "" {
		return nil, errors.New("key id is required")
	}
	body, err := json.Marshal(signRequest{
		Alg:    signingAlg,
		Digest: base64.StdEncoding.EncodeToString(digest),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/v1/keys/"+keyID+"/sign", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransientError{Op: "kms sign", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransientError{Op: "kms sign", Err: err}
	}
	if err := classifyStatus(resp.StatusCode, "kms sign"); err != nil {
		return nil, err
	}

	var out signResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("kms sign: malformed response: %w", err)
	}
	der, err := base64.StdEncoding.DecodeString(out.Signature)
	if err != nil || len(der) == 0 {
		return nil, &domain.FormatError{Field: "signature", Reason: "response is not base64 DER"}
	}
	return der, nil
}

// PublicKey fetches the public JWK of a signing key.
func (c *Client) PublicKey(ctx context.Context, keyID string) (domain.JWK, error) {
	if c == nil || c.addr == "" {
		return domain.JWK{}, errors.New("kms client not configured")
	}
	if keyID == "" {
		return domain.JWK{}, errors.New("key id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/v1/keys/"+keyID, nil)
	if err != nil {
		return domain.JWK{}, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.JWK{}, &domain.TransientError{Op: "kms get key", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.JWK{}, &domain.TransientError{Op: "kms get key", Err: err}
	}
	if err := classifyStatus(resp.StatusCode, "kms get key"); err != nil {
		return domain.JWK{}, err
	}

	var out keyResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return domain.JWK{}, fmt.Errorf("kms get key: malformed response: %w", err)
	}
	if !out.JWK.IsECP256() {
		return domain.JWK{}, domain.ErrUnsupportedKeyType
	}
	return out.JWK, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if req.Method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
}

// classifyStatus maps response codes onto the retry taxonomy: 5xx and
// throttling are transient, key errors are permanent.
func classifyStatus(status int, op string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound, status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: status %d: %w", op, status, domain.ErrKeyUnknown)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%s: access denied: status %d", op, status)
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return &domain.TransientError{Op: op, Err: fmt.Errorf("status %d", status)}
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}

type signRequest struct {
	Alg    string `json:"alg"`
	Digest string `json:"digest"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

type keyResponse struct {
	JWK domain.JWK `json:"jwk"`
}
