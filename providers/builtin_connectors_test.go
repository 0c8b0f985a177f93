package providers_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers/confluence"
	"github.com/goliatone/go-connectors/providers/devkit"
	"github.com/goliatone/go-connectors/providers/jira"
	"github.com/goliatone/go-connectors/providers/postgres"
	"github.com/goliatone/go-connectors/providers/salesforce"
)

type connectorFactory struct {
	name    string
	group   core.ConnectorGroup
	factory func() (core.Connector, error)
}

func builtinFactories() []connectorFactory {
	transport := func() core.TransportAdapter {
		return devkit.NewFakeTransportAdapter("rest")
	}
	return []connectorFactory{
		{
			name:  "jira",
			group: core.ConnectorGroupSaaS,
			factory: func() (core.Connector, error) {
				return jira.New(jira.Config{ClientID: "client", ClientSecret: "secret", Transport: transport()})
			},
		},
		{
			name:  "confluence",
			group: core.ConnectorGroupSaaS,
			factory: func() (core.Connector, error) {
				return confluence.New(confluence.Config{ClientID: "client", ClientSecret: "secret", Transport: transport()})
			},
		},
		{
			name:  "salesforce",
			group: core.ConnectorGroupSaaS,
			factory: func() (core.Connector, error) {
				return salesforce.New(salesforce.Config{ClientID: "client", ClientSecret: "secret", Transport: transport()})
			},
		},
		{
			name:  "postgres",
			group: core.ConnectorGroupDB,
			factory: func() (core.Connector, error) {
				return postgres.New(postgres.Config{})
			},
		},
	}
}

// Every built-in adapter must present a valid descriptor and reject the
// operations it does not advertise with the shared sentinel.
func TestBuiltinConnectorsConform(t *testing.T) {
	for _, tc := range builtinFactories() {
		t.Run(tc.name, func(t *testing.T) {
			connector, err := tc.factory()
			if err != nil {
				t.Fatalf("build %s: %v", tc.name, err)
			}
			descriptor := connector.Descriptor()
			if descriptor.ID != tc.name {
				t.Fatalf("expected id %q, got %q", tc.name, descriptor.ID)
			}
			if descriptor.Group != tc.group {
				t.Fatalf("expected group %q, got %q", tc.group, descriptor.Group)
			}
			if err := devkit.ValidateConnectorConformance(context.Background(), connector); err != nil {
				t.Fatalf("conformance: %v", err)
			}
		})
	}
}

// The registry accepts the full built-in set without id collisions.
func TestBuiltinConnectorsRegister(t *testing.T) {
	registry := core.NewConnectorRegistry()
	for _, tc := range builtinFactories() {
		connector, err := tc.factory()
		if err != nil {
			t.Fatalf("build %s: %v", tc.name, err)
		}
		if err := registry.Register(connector); err != nil {
			t.Fatalf("register %s: %v", tc.name, err)
		}
	}
	if got := len(registry.List()); got != 4 {
		t.Fatalf("expected four registered connectors, got %d", got)
	}
}
