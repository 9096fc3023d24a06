package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses yaml durations in time.ParseDuration form ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

type Config struct {
	LogLevel string `yaml:"log_level"`

	KMSAddr    string   `yaml:"kms_addr"`
	KMSToken   string   `yaml:"kms_token"`
	KMSKeyID   string   `yaml:"kms_key_id"`
	KMSTimeout Duration `yaml:"kms_timeout"`

	SignCallTimeout Duration `yaml:"sign_call_timeout"`
	SignMaxRetries  int      `yaml:"sign_max_retries"`
	SignRetryBase   Duration `yaml:"sign_retry_base"`
	SignRetryMax    Duration `yaml:"sign_retry_max"`

	BreakerFailureThreshold int      `yaml:"breaker_failure_threshold"`
	BreakerVolumeThreshold  int      `yaml:"breaker_volume_threshold"`
	BreakerSuccessThreshold int      `yaml:"breaker_success_threshold"`
	BreakerWindow           Duration `yaml:"breaker_window"`
	BreakerRecoveryTimeout  Duration `yaml:"breaker_recovery_timeout"`

	// Fallback signing must be opted into explicitly; it is never enabled
	// silently in production.
	FallbackEnabled         bool   `yaml:"fallback_enabled"`
	FallbackKeyScalarBase64 string `yaml:"fallback_key_scalar_base64"`
	FallbackKeyScalarHex    string `yaml:"fallback_key_scalar_hex"`

	TSAURL        string   `yaml:"tsa_url"`
	TSATimeout    Duration `yaml:"tsa_timeout"`
	TSARetries    int      `yaml:"tsa_retries"`
	TSARetryDelay Duration `yaml:"tsa_retry_delay"`
}

// FromEnv reads configuration from CERTNODE_* environment variables with
// the same defaults the yaml loader uses.
func FromEnv() Config {
	cfg := defaults()
	applyEnv(&cfg)
	return cfg
}

// Load reads yaml configuration from path (if it exists) and then applies
// environment overrides, so env always wins.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		LogLevel:                "info",
		KMSTimeout:              Duration{10 * time.Second},
		SignCallTimeout:         Duration{5 * time.Second},
		SignMaxRetries:          2,
		SignRetryBase:           Duration{100 * time.Millisecond},
		SignRetryMax:            Duration{2 * time.Second},
		BreakerFailureThreshold: 5,
		BreakerVolumeThreshold:  10,
		BreakerSuccessThreshold: 2,
		BreakerWindow:           Duration{time.Minute},
		BreakerRecoveryTimeout:  Duration{30 * time.Second},
		TSATimeout:              Duration{5 * time.Second},
		TSARetries:              2,
		TSARetryDelay:           Duration{200 * time.Millisecond},
	}
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = envDefault("CERTNODE_LOG_LEVEL", cfg.LogLevel)
	cfg.KMSAddr = envDefault("CERTNODE_KMS_ADDR", cfg.KMSAddr)
	cfg.KMSToken = envDefault("CERTNODE_KMS_TOKEN", cfg.KMSToken)
	cfg.KMSKeyID = envDefault("CERTNODE_KMS_KEY_ID", cfg.KMSKeyID)
	cfg.KMSTimeout = envDurationDefault("CERTNODE_KMS_TIMEOUT", cfg.KMSTimeout)
	cfg.SignCallTimeout = envDurationDefault("CERTNODE_SIGN_CALL_TIMEOUT", cfg.SignCallTimeout)
	cfg.SignMaxRetries = envIntDefault("CERTNODE_SIGN_MAX_RETRIES", cfg.SignMaxRetries)
	cfg.SignRetryBase = envDurationDefault("CERTNODE_SIGN_RETRY_BASE", cfg.SignRetryBase)
	cfg.SignRetryMax = envDurationDefault("CERTNODE_SIGN_RETRY_MAX", cfg.SignRetryMax)
	cfg.BreakerFailureThreshold = envIntDefault("CERTNODE_BREAKER_FAILURE_THRESHOLD", cfg.BreakerFailureThreshold)
	cfg.BreakerVolumeThreshold = envIntDefault("CERTNODE_BREAKER_VOLUME_THRESHOLD", cfg.BreakerVolumeThreshold)
	cfg.BreakerSuccessThreshold = envIntDefault("CERTNODE_BREAKER_SUCCESS_THRESHOLD", cfg.BreakerSuccessThreshold)
	cfg.BreakerWindow = envDurationDefault("CERTNODE_BREAKER_WINDOW", cfg.BreakerWindow)
	cfg.BreakerRecoveryTimeout = envDurationDefault("CERTNODE_BREAKER_RECOVERY_TIMEOUT", cfg.BreakerRecoveryTimeout)
	cfg.FallbackEnabled = envBoolDefault("CERTNODE_FALLBACK_ENABLED", cfg.FallbackEnabled)
	cfg.FallbackKeyScalarBase64 = envDefault("CERTNODE_FALLBACK_KEY_SCALAR_BASE64", cfg.FallbackKeyScalarBase64)
	cfg.FallbackKeyScalarHex = envDefault("CERTNODE_FALLBACK_KEY_SCALAR_HEX", cfg.FallbackKeyScalarHex)
	cfg.TSAURL = envDefault("CERTNODE_TSA_URL", cfg.TSAURL)
	cfg.TSATimeout = envDurationDefault("CERTNODE_TSA_TIMEOUT", cfg.TSATimeout)
	cfg.TSARetries = envIntDefault("CERTNODE_TSA_RETRIES", cfg.TSARetries)
	cfg.TSARetryDelay = envDurationDefault("CERTNODE_TSA_RETRY_DELAY", cfg.TSARetryDelay)
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func envDurationDefault(key string, def Duration) Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return Duration{parsed}
}
