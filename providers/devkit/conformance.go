package devkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

// ValidateConnectorConformance checks the contract rules a connector cannot
// break without confusing the service: the descriptor must be valid, and
// every operation outside the advertised capability set must reject with
// the capability sentinel instead of silently doing work.
func ValidateConnectorConformance(ctx context.Context, connector core.Connector) error {
	if connector == nil {
		return fmt.Errorf("devkit: connector is required")
	}
	descriptor := connector.Descriptor()
	if err := descriptor.Validate(); err != nil {
		return err
	}

	advertised := map[core.Capability]struct{}{}
	for _, capability := range descriptor.Capabilities {
		advertised[capability] = struct{}{}
	}

	cfg := core.ConnectorConfig{TenantID: "devkit", ConnectionID: "devkit_conn"}
	page := core.PageRequest{Limit: 1}
	checks := []struct {
		capability core.Capability
		invoke     func() error
	}{
		{core.CapabilityProbe, func() error {
			_, err := connector.Probe(ctx, cfg)
			return err
		}},
		{core.CapabilityJobs, func() error {
			_, err := connector.Execute(ctx, cfg, core.JobSpec{Kind: core.JobKindProbe})
			return err
		}},
		{core.CapabilityContainers, func() error {
			_, err := connector.ListContainers(ctx, cfg, page)
			return err
		}},
		{core.CapabilityItems, func() error {
			_, err := connector.ListItems(ctx, cfg, "devkit_container", page)
			return err
		}},
		{core.CapabilityComments, func() error {
			_, err := connector.ListComments(ctx, cfg, "devkit_item", page)
			return err
		}},
		{core.CapabilityWebhooks, func() error {
			_, err := connector.RegisterWebhook(ctx, cfg, core.WebhookTarget{URL: "https://devkit.invalid/hook"})
			return err
		}},
	}

	for _, check := range checks {
		if _, ok := advertised[check.capability]; ok {
			continue
		}
		err := check.invoke()
		if err == nil {
			return fmt.Errorf(
				"devkit: connector %q accepted %q without advertising it",
				descriptor.ID, check.capability,
			)
		}
		if !errors.Is(err, core.ErrCapabilityNotSupported) {
			return fmt.Errorf(
				"devkit: connector %q rejected %q with the wrong sentinel: %w",
				descriptor.ID, check.capability, err,
			)
		}
	}
	return nil
}

// ValidateTransportAdapterConformance exercises an adapter once and checks
// the kind is set; scripted adapters use it as a smoke test.
func ValidateTransportAdapterConformance(
	ctx context.Context,
	adapter core.TransportAdapter,
	request core.TransportRequest,
) error {
	if adapter == nil {
		return fmt.Errorf("devkit: transport adapter is required")
	}
	if strings.TrimSpace(adapter.Kind()) == "" {
		return fmt.Errorf("devkit: transport adapter kind is required")
	}
	_, err := adapter.Do(ctx, request)
	return err
}
