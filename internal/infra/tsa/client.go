package tsa

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"certnode/internal/domain"
)

const (
	contentTypeQuery = "application/timestamp-query"
	contentTypeReply = "application/timestamp-reply"

	maxReplySize = 1 << 20
)

type Options struct {
	// URL of the timestamp authority. Empty means no authority is
	// configured and RequestToken produces a local pseudo-token.
	URL        string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

type Client struct {
	url        string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		url:        opts.URL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
}

// RequestToken exchanges a base64url SHA-256 digest for a timestamp token,
// returned base64url-encoded. Timestamping is best effort: if every
// attempt against a configured authority fails, the failure is logged and
// ("", nil) is returned so issuance proceeds without a token. Only a
// malformed digest is an error.
func (c *Client) RequestToken(ctx context.Context, digestB64 string) (string, error) {
	digest, err := base64.RawURLEncoding.DecodeString(digestB64)
	if err != nil {
		return "", &domain.FormatError{Field: "digest", Reason: "invalid base64url"}
	}
	if len(digest) != digestSize {
		return "", &domain.FormatError{Field: "digest", Reason: "must be 32 bytes"}
	}

	if c.url == "" {
		return pseudoToken(digestB64), nil
	}

	body, err := BuildTimeStampReq(digest)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.logger.Warn("timestamp request abandoned", zap.Error(ctx.Err()))
				return "", nil
			case <-time.After(c.retryDelay):
			}
		}
		token, err := c.requestOnce(ctx, body)
		if err == nil {
			return token, nil
		}
		lastErr = err
	}
	c.logger.Warn("timestamp authority unavailable, issuing without token",
		zap.String("url", c.url), zap.Error(lastErr))
	return "", nil
}

func (c *Client) requestOnce(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentTypeQuery)
	req.Header.Set("Accept", contentTypeReply)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tsa request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tsa status %d: %w", resp.StatusCode, domain.ErrTimestampUnavailable)
	}
	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return "", fmt.Errorf("tsa read reply: %w", err)
	}
	if len(reply) == 0 {
		return "", fmt.Errorf("tsa empty reply: %w", domain.ErrTimestampUnavailable)
	}
	return base64.RawURLEncoding.EncodeToString(reply), nil
}

// pseudoToken derives a deterministic stand-in from the digest for
// deployments without a timestamp authority. It proves nothing about time
// and is distinguishable from a real token by consumers.
func pseudoToken(digestB64 string) string {
	sum := sha256.Sum256([]byte(digestB64))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
