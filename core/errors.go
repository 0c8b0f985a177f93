package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ConnectorErrorBadInput              = "CONNECTORS_BAD_INPUT"
	ConnectorErrorInvalidConfig         = "CONNECTORS_INVALID_CONFIG"
	ConnectorErrorNotFound              = "CONNECTORS_NOT_FOUND"
	ConnectorErrorCapabilityUnsupported = "CONNECTORS_CAPABILITY_UNSUPPORTED"
	ConnectorErrorInvalidState          = "CONNECTORS_INVALID_STATE"
	ConnectorErrorHandshakeConsumed     = "CONNECTORS_HANDSHAKE_ALREADY_CONSUMED"
	ConnectorErrorHandshakeExpired      = "CONNECTORS_HANDSHAKE_EXPIRED"
	ConnectorErrorAuthFailed            = "CONNECTORS_AUTH_FAILED"
	ConnectorErrorProviderTimeout       = "CONNECTORS_PROVIDER_TIMEOUT"
	ConnectorErrorProviderUnavailable   = "CONNECTORS_PROVIDER_UNAVAILABLE"
	ConnectorErrorEncryptionError       = "CONNECTORS_ENCRYPTION_ERROR"
	ConnectorErrorRateLimited           = "CONNECTORS_RATE_LIMITED"
	ConnectorErrorInternal              = "CONNECTORS_INTERNAL_ERROR"
)

// connectorErrorMapper normalizes any error into a *goerrors.Error carrying
// the connector text code and HTTP status for envelope rendering. Typed
// sentinels are matched first so callers can rely on errors.Is upstream.
func connectorErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureConnectorErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrHandshakeConsumed):
		return newConnectorError(err.Error(), goerrors.CategoryConflict, ConnectorErrorHandshakeConsumed)
	case errors.Is(err, ErrHandshakeExpired):
		return newConnectorError(err.Error(), goerrors.CategoryAuth, ConnectorErrorHandshakeExpired)
	case errors.Is(err, ErrHandshakeNotFound):
		return newConnectorError(err.Error(), goerrors.CategoryNotFound, ConnectorErrorNotFound)
	case errors.Is(err, ErrConnectorNotFound), errors.Is(err, ErrConnectionNotFound),
		errors.Is(err, ErrSyncStateNotFound), errors.Is(err, ErrJobNotFound):
		return newConnectorError(err.Error(), goerrors.CategoryNotFound, ConnectorErrorNotFound)
	case errors.Is(err, ErrCapabilityNotSupported):
		return newConnectorError(err.Error(), goerrors.CategoryOperation, ConnectorErrorCapabilityUnsupported)
	case errors.Is(err, context.DeadlineExceeded):
		return newConnectorError("provider call timed out", goerrors.CategoryExternal, ConnectorErrorProviderTimeout)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "connector") && strings.Contains(msg, "not registered"):
		return newConnectorError(err.Error(), goerrors.CategoryNotFound, ConnectorErrorNotFound)
	case strings.Contains(msg, "capability") && strings.Contains(msg, "not supported"):
		return newConnectorError(err.Error(), goerrors.CategoryOperation, ConnectorErrorCapabilityUnsupported)
	case strings.Contains(msg, "handshake") && strings.Contains(msg, "consumed"):
		return newConnectorError(err.Error(), goerrors.CategoryConflict, ConnectorErrorHandshakeConsumed)
	case strings.Contains(msg, "handshake") && strings.Contains(msg, "expired"):
		return newConnectorError(err.Error(), goerrors.CategoryAuth, ConnectorErrorHandshakeExpired)
	case strings.Contains(msg, "status transition"), strings.Contains(msg, "already revoked"):
		return newConnectorError(err.Error(), goerrors.CategoryConflict, ConnectorErrorInvalidState)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		return newConnectorError(err.Error(), goerrors.CategoryExternal, ConnectorErrorProviderTimeout)
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return newConnectorError(err.Error(), goerrors.CategoryExternal, ConnectorErrorProviderUnavailable)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newConnectorError(err.Error(), goerrors.CategoryRateLimit, ConnectorErrorRateLimited)
	case strings.Contains(msg, "decrypt"), strings.Contains(msg, "encrypt"), strings.Contains(msg, "cipher"):
		return newConnectorError(err.Error(), goerrors.CategoryInternal, ConnectorErrorEncryptionError)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "auth failed"), strings.Contains(msg, "invalid credentials"):
		return newConnectorError(err.Error(), goerrors.CategoryAuth, ConnectorErrorAuthFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newConnectorError(err.Error(), goerrors.CategoryBadInput, ConnectorErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureConnectorErrorEnvelope(mapped)
}

func newConnectorError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureConnectorErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureConnectorErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = connectorHTTPStatus(err.Category, err.TextCode)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultConnectorTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultConnectorTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ConnectorErrorBadInput
	case goerrors.CategoryValidation:
		return ConnectorErrorInvalidConfig
	case goerrors.CategoryNotFound:
		return ConnectorErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ConnectorErrorAuthFailed
	case goerrors.CategoryConflict:
		return ConnectorErrorInvalidState
	case goerrors.CategoryRateLimit:
		return ConnectorErrorRateLimited
	case goerrors.CategoryOperation:
		return ConnectorErrorCapabilityUnsupported
	case goerrors.CategoryExternal:
		return ConnectorErrorProviderUnavailable
	default:
		return ConnectorErrorInternal
	}
}

func connectorHTTPStatus(category goerrors.Category, textCode string) int {
	if textCode == ConnectorErrorProviderTimeout {
		return http.StatusGatewayTimeout
	}
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
