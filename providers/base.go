package providers

import (
	"context"
	"fmt"

	"github.com/goliatone/go-connectors/core"
)

// BaseConnector supplies rejecting defaults for the full connector
// contract. Adapters embed it and override only the operations their
// descriptor advertises; anything else funnels into the capability
// sentinel the service maps to a structured rejection.
type BaseConnector struct {
	descriptor core.ConnectorDescriptor
}

func NewBaseConnector(descriptor core.ConnectorDescriptor) BaseConnector {
	return BaseConnector{descriptor: descriptor}
}

func (b BaseConnector) Descriptor() core.ConnectorDescriptor {
	return b.descriptor
}

// Validate accepts by default. Connectors with required settings override
// this with real checks.
func (b BaseConnector) Validate(context.Context, core.ConnectorConfig) (core.ValidationResult, error) {
	return core.ValidationResult{OK: true}, nil
}

func (b BaseConnector) Probe(context.Context, core.ConnectorConfig) (core.ProbeResult, error) {
	return core.ProbeResult{}, b.unsupported("probe")
}

func (b BaseConnector) Execute(context.Context, core.ConnectorConfig, core.JobSpec) (core.JobResult, error) {
	return core.JobResult{}, b.unsupported("execute")
}

func (b BaseConnector) ListContainers(context.Context, core.ConnectorConfig, core.PageRequest) (core.Page[core.Container], error) {
	return core.Page[core.Container]{}, b.unsupported("list containers")
}

func (b BaseConnector) ListItems(context.Context, core.ConnectorConfig, string, core.PageRequest) (core.Page[core.Item], error) {
	return core.Page[core.Item]{}, b.unsupported("list items")
}

func (b BaseConnector) ListComments(context.Context, core.ConnectorConfig, string, core.PageRequest) (core.Page[core.Comment], error) {
	return core.Page[core.Comment]{}, b.unsupported("list comments")
}

func (b BaseConnector) RegisterWebhook(context.Context, core.ConnectorConfig, core.WebhookTarget) (core.WebhookHandle, error) {
	return core.WebhookHandle{}, b.unsupported("register webhook")
}

func (b BaseConnector) UnregisterWebhook(context.Context, core.ConnectorConfig, core.WebhookHandle) error {
	return b.unsupported("unregister webhook")
}

func (b BaseConnector) unsupported(operation string) error {
	id := b.descriptor.ID
	if id == "" {
		id = "connector"
	}
	return fmt.Errorf("providers: %s does not support %s: %w", id, operation, core.ErrCapabilityNotSupported)
}

var _ core.Connector = BaseConnector{}
