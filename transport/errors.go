package transport

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-connectors/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category, code))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	if isTimeout(source) {
		category = goerrors.CategoryExternal
		code = http.StatusGatewayTimeout
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category, code))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category, code int) string {
	if code == http.StatusGatewayTimeout {
		return core.ConnectorErrorProviderTimeout
	}
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ConnectorErrorBadInput
	case goerrors.CategoryAuth:
		return core.ConnectorErrorAuthFailed
	case goerrors.CategoryRateLimit:
		return core.ConnectorErrorRateLimited
	case goerrors.CategoryExternal:
		return core.ConnectorErrorProviderUnavailable
	default:
		return core.ConnectorErrorInternal
	}
}

// isTimeout reports whether err is a deadline or a net-level timeout, so
// provider timeouts surface as CONNECTORS_PROVIDER_TIMEOUT instead of a
// generic upstream failure.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
