// Package signer wraps the external signing authority with the breaker,
// retry and fallback policy. One Service exists per signing-key/authority
// pair; its kid is the RFC 7638 thumbprint of the configured public key.
package signer

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"certnode/internal/domain"
	"certnode/internal/infra/breaker"
	"certnode/internal/infra/crypto"
)

// Upstream is the single-attempt signing authority boundary.
type Upstream interface {
	Sign(ctx context.Context, keyID string, digest []byte) ([]byte, error)
}

// Fallback is a locally held key used only when explicitly enabled.
type Fallback interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
	KID() string
	PublicJWK() domain.JWK
}

type Options struct {
	KeyID     string
	PublicJWK domain.JWK

	CallTimeout time.Duration
	MaxRetries  int
	RetryBase   time.Duration
	RetryMax    time.Duration

	// EnableFallback routes to the local key when the authority is open
	// or transiently failing. Never enabled implicitly.
	EnableFallback bool

	Breaker breaker.Settings
	Logger  *zap.Logger
}

type Service struct {
	upstream Upstream
	fallback Fallback
	breaker  *breaker.Breaker

	keyID          string
	kid            string
	jwk            domain.JWK
	callTimeout    time.Duration
	maxRetries     int
	retryBase      time.Duration
	retryMax       time.Duration
	enableFallback bool
	logger         *zap.Logger
}

func New(upstream Upstream, fallback Fallback, opts Options) (*Service, error) {
	s := &Service{
		upstream:       upstream,
		fallback:       fallback,
		breaker:        breaker.New(opts.Breaker),
		keyID:          opts.KeyID,
		callTimeout:    opts.CallTimeout,
		maxRetries:     opts.MaxRetries,
		retryBase:      opts.RetryBase,
		retryMax:       opts.RetryMax,
		enableFallback: opts.EnableFallback,
		logger:         opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.callTimeout <= 0 {
		s.callTimeout = 5 * time.Second
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.retryBase <= 0 {
		s.retryBase = 100 * time.Millisecond
	}
	if s.retryMax <= 0 {
		s.retryMax = 2 * time.Second
	}

	switch {
	case upstream != nil:
		if opts.KeyID == "" {
			return nil, errors.New("key id is required")
		}
		kid, err := crypto.Thumbprint(opts.PublicJWK)
		if err != nil {
			return nil, err
		}
		s.kid = kid
		s.jwk = opts.PublicJWK
		s.jwk.KID = kid
	case fallback != nil:
		// Local-only mode for development and tests.
		s.kid = fallback.KID()
		s.jwk = fallback.PublicJWK()
		s.enableFallback = true
	default:
		return nil, errors.New("signer needs an upstream or a fallback key")
	}
	return s, nil
}

func (s *Service) KID() string { return s.kid }

func (s *Service) PublicJWK() domain.JWK { return s.jwk }

// Sign returns a DER ECDSA signature over SHA-256 of the message. An open
// circuit fails fast; transient upstream failures retry with jittered
// backoff; the fallback key engages only when enabled, and only for
// circuit-open or exhausted-transient outcomes. Permanent errors
// (unknown key, malformed responses) surface immediately.
func (s *Service) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if s.upstream == nil {
		return s.fallback.Sign(ctx, message)
	}

	digest := sha256.Sum256(message)
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, s.backoff(attempt)); err != nil {
				return nil, err
			}
			s.logger.Debug("retrying kms sign", zap.Int("attempt", attempt))
		}

		// Checked before every attempt, not just the first: a circuit that
		// trips mid-loop stops the remaining retries from reaching the
		// network.
		if err := s.breaker.Allow(); err != nil {
			var open *domain.CircuitOpenError
			if errors.As(err, &open) && s.enableFallback && s.fallback != nil {
				s.logger.Warn("circuit open, signing with fallback key",
					zap.Time("next_attempt_at", open.NextAttemptAt))
				return s.fallback.Sign(ctx, message)
			}
			return nil, err
		}

		der, duration, err := s.callOnce(ctx, digest[:])
		s.breaker.Record(err == nil, duration, err)
		if err == nil {
			return der, nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			s.logger.Error("kms sign failed permanently", zap.Error(err))
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	if s.enableFallback && s.fallback != nil {
		s.logger.Warn("kms retries exhausted, signing with fallback key", zap.Error(lastErr))
		return s.fallback.Sign(ctx, message)
	}
	return nil, lastErr
}

// callOnce races one upstream attempt against the per-call timeout. A late
// success after the timeout is discarded, never returned.
func (s *Service) callOnce(ctx context.Context, digest []byte) ([]byte, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	type result struct {
		der []byte
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		der, err := s.upstream.Sign(callCtx, s.keyID, digest)
		ch <- result{der: der, err: err}
	}()

	select {
	case res := <-ch:
		return res.der, time.Since(start), res.err
	case <-callCtx.Done():
		return nil, time.Since(start), &domain.TransientError{Op: "kms sign", Err: callCtx.Err()}
	}
}

// backoff doubles the base per attempt, caps it, and applies jitter in
// [delay/2, delay] to avoid a thundering herd against a recovering
// authority.
func (s *Service) backoff(attempt int) time.Duration {
	// Cap the shift so large attempt counts cannot overflow the delay.
	shift := attempt - 1
	if shift > 20 {
		shift = 20
	}
	delay := s.retryBase << shift
	if delay > s.retryMax || delay <= 0 {
		delay = s.retryMax
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
