package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestSuccessEnvelope(t *testing.T) {
	envelope := SuccessEnvelope(map[string]any{"id": "conn_1"})
	if !envelope.OK {
		t.Fatalf("expected ok envelope")
	}
	if envelope.Error != nil {
		t.Fatalf("expected no error block, got %#v", envelope.Error)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok || data["id"] != "conn_1" {
		t.Fatalf("expected data to pass through, got %#v", envelope.Data)
	}
}

func TestErrorEnvelopeCarriesTaxonomy(t *testing.T) {
	envelope := ErrorEnvelope(ErrConnectionNotFound)
	if envelope.OK {
		t.Fatalf("expected failure envelope")
	}
	if envelope.Error == nil {
		t.Fatalf("expected error block")
	}
	if envelope.Error.Code != ConnectorErrorNotFound {
		t.Fatalf("expected code %q, got %q", ConnectorErrorNotFound, envelope.Error.Code)
	}
	if envelope.Error.Message == "" {
		t.Fatalf("expected a message")
	}
}

func TestErrorEnvelopeRedactsDetails(t *testing.T) {
	rich := goerrors.New("provider rejected the call", goerrors.CategoryExternal).
		WithTextCode(ConnectorErrorProviderUnavailable).
		WithMetadata(map[string]any{
			"connector_id": "jira",
			"api_key":      "super-secret",
		})

	envelope := ErrorEnvelope(rich)
	if envelope.Error == nil {
		t.Fatalf("expected error block")
	}
	if envelope.Error.Details["connector_id"] != "jira" {
		t.Fatalf("expected traceability detail to survive, got %#v", envelope.Error.Details)
	}
	if envelope.Error.Details["api_key"] != RedactedValue {
		t.Fatalf("expected api_key detail to be redacted, got %#v", envelope.Error.Details["api_key"])
	}
}

func TestErrorEnvelopeNilError(t *testing.T) {
	envelope := ErrorEnvelope(nil)
	if !envelope.OK || envelope.Error != nil {
		t.Fatalf("expected nil error to produce a success envelope, got %#v", envelope)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "not found", err: ErrJobNotFound, want: http.StatusNotFound},
		{name: "consumed handshake", err: ErrHandshakeConsumed, want: http.StatusConflict},
		{name: "expired handshake", err: ErrHandshakeExpired, want: http.StatusUnauthorized},
		{name: "bad input wording", err: fmt.Errorf("tenant id is required"), want: http.StatusBadRequest},
		{name: "timeout wording", err: fmt.Errorf("provider call timed out"), want: http.StatusGatewayTimeout},
		{name: "rate limit wording", err: fmt.Errorf("rate limit exceeded"), want: http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatusFromError(tc.err); got != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, got)
			}
		})
	}
}

func TestMapErrorExposesMapper(t *testing.T) {
	mapped := MapError(ErrCapabilityNotSupported)
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != ConnectorErrorCapabilityUnsupported {
		t.Fatalf("expected capability code, got %q", mapped.TextCode)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil mapping for nil error")
	}
}
