package receipt

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"certnode/internal/config"
	"certnode/internal/infra/breaker"
	"certnode/internal/infra/keys/soft"
	"certnode/internal/infra/kms"
	"certnode/internal/infra/signer"
	"certnode/internal/infra/tsa"
	"certnode/internal/usecase"
)

// NewSigner builds the resilient signing service from configuration. With
// a KMS address configured it fetches the key's public JWK from the
// authority and wraps calls in the breaker/retry/fallback policy; without
// one it runs on the configured local key alone.
func NewSigner(ctx context.Context, cfg config.Config, logger *zap.Logger) (Signer, error) {
	var fallback *soft.Manager
	if cfg.FallbackEnabled {
		var err error
		fallback, err = soft.NewManagerFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("load fallback key: %w", err)
		}
	}

	if cfg.KMSAddr == "" {
		if fallback == nil {
			return nil, errors.New("no kms address and no fallback key configured")
		}
		return signer.New(nil, fallback, signer.Options{Logger: logger})
	}

	client := kms.New(cfg.KMSAddr, cfg.KMSToken, cfg.KMSTimeout.Duration)
	jwk, err := client.PublicKey(ctx, cfg.KMSKeyID)
	if err != nil {
		return nil, fmt.Errorf("fetch signing key: %w", err)
	}

	return signer.New(client, fallback, signer.Options{
		KeyID:          cfg.KMSKeyID,
		PublicJWK:      jwk,
		CallTimeout:    cfg.SignCallTimeout.Duration,
		MaxRetries:     cfg.SignMaxRetries,
		RetryBase:      cfg.SignRetryBase.Duration,
		RetryMax:       cfg.SignRetryMax.Duration,
		EnableFallback: cfg.FallbackEnabled && fallback != nil,
		Breaker: breaker.Settings{
			FailureThreshold: cfg.BreakerFailureThreshold,
			VolumeThreshold:  cfg.BreakerVolumeThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			Window:           cfg.BreakerWindow.Duration,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout.Duration,
		},
		Logger: logger,
	})
}

// NewTimestamper builds the RFC 3161 client from configuration. An empty
// TSA URL yields the deterministic pseudo-token client.
func NewTimestamper(cfg config.Config, logger *zap.Logger) usecase.Timestamper {
	return tsa.NewClient(tsa.Options{
		URL:        cfg.TSAURL,
		Timeout:    cfg.TSATimeout.Duration,
		Retries:    cfg.TSARetries,
		RetryDelay: cfg.TSARetryDelay.Duration,
		Logger:     logger,
	})
}

// NewLogger builds a production zap logger at the configured level.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	return zcfg.Build()
}
