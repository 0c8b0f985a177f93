package transport

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-connectors/core"
)

const (
	KindGraphQL = "graphql"
	KindStream  = "stream"
	KindFile    = "file"
)

// UnsupportedAdapter rejects every call for a transport kind the runtime
// does not ship. Connectors that declare such a kind fail loudly at call
// time instead of silently no-oping.
type UnsupportedAdapter struct {
	kind   string
	reason string
}

func NewUnsupportedAdapter(kind string, reason string) *UnsupportedAdapter {
	return &UnsupportedAdapter{
		kind:   strings.TrimSpace(strings.ToLower(kind)),
		reason: strings.TrimSpace(reason),
	}
}

func (a *UnsupportedAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *UnsupportedAdapter) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, transportError(
			"transport: adapter is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	message := "transport: " + a.kind + " adapter is not configured"
	if a.reason != "" {
		message += ": " + a.reason
	}
	err := goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(core.ConnectorErrorCapabilityUnsupported).
		WithMetadata(map[string]any{"adapter": a.kind})
	return core.TransportResponse{}, err
}

var _ core.TransportAdapter = (*UnsupportedAdapter)(nil)
