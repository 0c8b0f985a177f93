package core

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Envelope is the wire shape every transport surface renders: {ok, data} on
// success, {ok, error:{code, message, details}} on failure.
type Envelope struct {
	OK    bool           `json:"ok"`
	Data  any            `json:"data,omitempty"`
	Error *EnvelopeError `json:"error,omitempty"`
}

type EnvelopeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func SuccessEnvelope(data any) Envelope {
	return Envelope{OK: true, Data: data}
}

// ErrorEnvelope normalizes any error through the connector taxonomy.
// Metadata is redacted before it becomes wire-visible detail.
func ErrorEnvelope(err error) Envelope {
	mapped := connectorErrorMapper(err)
	if mapped == nil {
		return SuccessEnvelope(nil)
	}
	envelope := Envelope{
		OK: false,
		Error: &EnvelopeError{
			Code:    mapped.TextCode,
			Message: mapped.Message,
		},
	}
	if len(mapped.Metadata) > 0 {
		envelope.Error.Details = RedactSensitiveMap(mapped.Metadata)
	}
	return envelope
}

// HTTPStatusFromError returns the transport status for an error, 200 for
// nil.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	mapped := connectorErrorMapper(err)
	if mapped == nil || mapped.Code == 0 {
		return http.StatusInternalServerError
	}
	return mapped.Code
}

// MapError exposes the taxonomy mapping for transports that embed the
// service.
func MapError(err error) *goerrors.Error {
	return connectorErrorMapper(err)
}
