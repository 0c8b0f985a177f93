package core

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestConnectorErrorMapperSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		status   int
	}{
		{
			name:     "handshake consumed",
			err:      fmt.Errorf("wrap: %w", ErrHandshakeConsumed),
			category: goerrors.CategoryConflict,
			textCode: ConnectorErrorHandshakeConsumed,
			status:   http.StatusConflict,
		},
		{
			name:     "handshake expired",
			err:      ErrHandshakeExpired,
			category: goerrors.CategoryAuth,
			textCode: ConnectorErrorHandshakeExpired,
			status:   http.StatusUnauthorized,
		},
		{
			name:     "handshake not found",
			err:      ErrHandshakeNotFound,
			category: goerrors.CategoryNotFound,
			textCode: ConnectorErrorNotFound,
			status:   http.StatusNotFound,
		},
		{
			name:     "connector not found",
			err:      fmt.Errorf("%w: jira", ErrConnectorNotFound),
			category: goerrors.CategoryNotFound,
			textCode: ConnectorErrorNotFound,
			status:   http.StatusNotFound,
		},
		{
			name:     "connection not found",
			err:      ErrConnectionNotFound,
			category: goerrors.CategoryNotFound,
			textCode: ConnectorErrorNotFound,
			status:   http.StatusNotFound,
		},
		{
			name:     "sync state not found",
			err:      ErrSyncStateNotFound,
			category: goerrors.CategoryNotFound,
			textCode: ConnectorErrorNotFound,
			status:   http.StatusNotFound,
		},
		{
			name:     "job not found",
			err:      ErrJobNotFound,
			category: goerrors.CategoryNotFound,
			textCode: ConnectorErrorNotFound,
			status:   http.StatusNotFound,
		},
		{
			name:     "capability not supported",
			err:      fmt.Errorf("%w: webhooks", ErrCapabilityNotSupported),
			category: goerrors.CategoryOperation,
			textCode: ConnectorErrorCapabilityUnsupported,
			status:   http.StatusUnprocessableEntity,
		},
		{
			name:     "context deadline",
			err:      context.DeadlineExceeded,
			category: goerrors.CategoryExternal,
			textCode: ConnectorErrorProviderTimeout,
			status:   http.StatusGatewayTimeout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := connectorErrorMapper(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.status {
				t.Fatalf("expected http status %d, got %d", tc.status, mapped.Code)
			}
		})
	}
}

func TestConnectorErrorMapperMessageClassification(t *testing.T) {
	cases := []struct {
		name     string
		message  string
		textCode string
	}{
		{name: "timeout wording", message: "request timed out waiting for provider", textCode: ConnectorErrorProviderTimeout},
		{name: "unavailable wording", message: "dial tcp: connection refused", textCode: ConnectorErrorProviderUnavailable},
		{name: "rate limit wording", message: "provider rate limit exceeded", textCode: ConnectorErrorRateLimited},
		{name: "throttle wording", message: "call throttled until reset", textCode: ConnectorErrorRateLimited},
		{name: "encryption wording", message: "cipher: message authentication failed", textCode: ConnectorErrorEncryptionError},
		{name: "auth wording", message: "provider returned 401 unauthorized", textCode: ConnectorErrorAuthFailed},
		{name: "transition wording", message: "invalid connection status transition: revoked -> connected", textCode: ConnectorErrorInvalidState},
		{name: "bad input wording", message: "tenant id is required", textCode: ConnectorErrorBadInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := connectorErrorMapper(fmt.Errorf("%s", tc.message))
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q for %q, got %q", tc.textCode, tc.message, mapped.TextCode)
			}
			if mapped.Code == 0 {
				t.Fatalf("expected http status to be filled in")
			}
		})
	}
}

func TestConnectorErrorMapperPreservesRichErrors(t *testing.T) {
	original := goerrors.New("quota exhausted", goerrors.CategoryRateLimit).
		WithTextCode(ConnectorErrorRateLimited).
		WithMetadata(map[string]any{"bucket": "rest"})

	mapped := connectorErrorMapper(original)
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != ConnectorErrorRateLimited {
		t.Fatalf("expected text code to survive, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 to be derived, got %d", mapped.Code)
	}
	if mapped.Metadata["bucket"] != "rest" {
		t.Fatalf("expected metadata to survive, got %#v", mapped.Metadata)
	}
}

func TestConnectorErrorMapperNil(t *testing.T) {
	if mapped := connectorErrorMapper(nil); mapped != nil {
		t.Fatalf("expected nil for nil error, got %#v", mapped)
	}
}

func TestDefaultConnectorTextCodeCoversCategories(t *testing.T) {
	cases := []struct {
		category goerrors.Category
		want     string
	}{
		{category: goerrors.CategoryBadInput, want: ConnectorErrorBadInput},
		{category: goerrors.CategoryValidation, want: ConnectorErrorInvalidConfig},
		{category: goerrors.CategoryNotFound, want: ConnectorErrorNotFound},
		{category: goerrors.CategoryAuth, want: ConnectorErrorAuthFailed},
		{category: goerrors.CategoryAuthz, want: ConnectorErrorAuthFailed},
		{category: goerrors.CategoryConflict, want: ConnectorErrorInvalidState},
		{category: goerrors.CategoryRateLimit, want: ConnectorErrorRateLimited},
		{category: goerrors.CategoryOperation, want: ConnectorErrorCapabilityUnsupported},
		{category: goerrors.CategoryExternal, want: ConnectorErrorProviderUnavailable},
		{category: goerrors.CategoryInternal, want: ConnectorErrorInternal},
	}

	for _, tc := range cases {
		if got := defaultConnectorTextCode(tc.category); got != tc.want {
			t.Fatalf("defaultConnectorTextCode(%q) = %q, want %q", tc.category, got, tc.want)
		}
	}
}

func TestConnectorHTTPStatusTimeoutOverride(t *testing.T) {
	if got := connectorHTTPStatus(goerrors.CategoryExternal, ConnectorErrorProviderTimeout); got != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 for provider timeout, got %d", got)
	}
	if got := connectorHTTPStatus(goerrors.CategoryExternal, ConnectorErrorProviderUnavailable); got != http.StatusBadGateway {
		t.Fatalf("expected 502 for provider unavailable, got %d", got)
	}
}
