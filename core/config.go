package core

import (
	"fmt"
	"strings"
	"time"
)

type OAuthConfig struct {
	// HandshakeTTL bounds how long a pending handshake stays consumable.
	HandshakeTTL time.Duration `koanf:"handshake_ttl" mapstructure:"handshake_ttl"`
	// ExposeVerifier echoes the PKCE code verifier back to Connect callers.
	// Development convenience for clients that finish the exchange
	// themselves; production keeps the verifier server side.
	ExposeVerifier bool `koanf:"expose_verifier" mapstructure:"expose_verifier"`
}

type VaultConfig struct {
	Key                 string `koanf:"key" mapstructure:"key"`
	KeyID               string `koanf:"key_id" mapstructure:"key_id"`
	AllowPlaintextFetch bool   `koanf:"allow_plaintext_fetch" mapstructure:"allow_plaintext_fetch"`
}

type PaginationConfig struct {
	DefaultLimit int `koanf:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `koanf:"max_limit" mapstructure:"max_limit"`
}

type ProviderCallConfig struct {
	ProbeTimeout  time.Duration `koanf:"probe_timeout" mapstructure:"probe_timeout"`
	CallTimeout   time.Duration `koanf:"call_timeout" mapstructure:"call_timeout"`
	RetryAttempts int           `koanf:"retry_attempts" mapstructure:"retry_attempts"`
}

type Config struct {
	ServiceName string             `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig        `koanf:"oauth" mapstructure:"oauth"`
	Vault       VaultConfig        `koanf:"vault" mapstructure:"vault"`
	Pagination  PaginationConfig   `koanf:"pagination" mapstructure:"pagination"`
	Providers   ProviderCallConfig `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "connectors",
		OAuth: OAuthConfig{
			HandshakeTTL: defaultHandshakeTTL,
		},
		Pagination: PaginationConfig{
			DefaultLimit: PageLimitDefault,
			MaxLimit:     PageLimitMax,
		},
		Providers: ProviderCallConfig{
			ProbeTimeout:  10 * time.Second,
			CallTimeout:   30 * time.Second,
			RetryAttempts: 1,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.HandshakeTTL < 0 {
		return fmt.Errorf("core: oauth.handshake_ttl must not be negative")
	}
	if c.Pagination.DefaultLimit < 0 || c.Pagination.DefaultLimit > PageLimitMax {
		return fmt.Errorf("core: pagination.default_limit must be between 0 and %d", PageLimitMax)
	}
	if c.Pagination.MaxLimit < 0 || c.Pagination.MaxLimit > PageLimitMax {
		return fmt.Errorf("core: pagination.max_limit must be between 0 and %d", PageLimitMax)
	}
	if c.Providers.ProbeTimeout < 0 || c.Providers.CallTimeout < 0 {
		return fmt.Errorf("core: provider timeouts must not be negative")
	}
	if c.Providers.RetryAttempts < 0 || c.Providers.RetryAttempts > 1 {
		return fmt.Errorf("core: providers.retry_attempts must be 0 or 1")
	}
	return nil
}
