package connectors

import (
	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers/confluence"
	"github.com/goliatone/go-connectors/providers/jira"
	"github.com/goliatone/go-connectors/providers/postgres"
	"github.com/goliatone/go-connectors/providers/salesforce"
)

func JiraConnector(cfg jira.Config) (core.Connector, error) {
	return jira.New(cfg)
}

func ConfluenceConnector(cfg confluence.Config) (core.Connector, error) {
	return confluence.New(cfg)
}

func SalesforceConnector(cfg salesforce.Config) (core.Connector, error) {
	return salesforce.New(cfg)
}

func PostgresConnector(cfg postgres.Config) (core.Connector, error) {
	return postgres.New(cfg)
}

// ReferenceConfig carries per-connector settings for the bundled
// reference adapters. Zero values are usable: oauth connectors come up
// without an exchange until client credentials are supplied.
type ReferenceConfig struct {
	Jira       jira.Config
	Confluence confluence.Config
	Salesforce salesforce.Config
	Postgres   postgres.Config
}

// NewReferenceRegistry builds a registry pre-loaded with the reference
// adapters. The registry is left unsealed so callers can add their own
// connectors before handing it to the service.
func NewReferenceRegistry(cfg ReferenceConfig) (*core.ConnectorRegistry, error) {
	registry := core.NewConnectorRegistry()

	jiraConnector, err := jira.New(cfg.Jira)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(jiraConnector); err != nil {
		return nil, err
	}

	confluenceConnector, err := confluence.New(cfg.Confluence)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(confluenceConnector); err != nil {
		return nil, err
	}

	salesforceConnector, err := salesforce.New(cfg.Salesforce)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(salesforceConnector); err != nil {
		return nil, err
	}

	postgresConnector, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(postgresConnector); err != nil {
		return nil, err
	}

	return registry, nil
}
