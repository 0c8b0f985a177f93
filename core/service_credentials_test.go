package core

import (
	"context"
	"strings"
	"testing"
)

func TestFetchCredentialPlaintextDeniedByDefault(t *testing.T) {
	harness, err := newTestHarness(DefaultConfig(), []Connector{
		newTestConnector("jira", []AuthMethod{AuthMethodAPIKey}),
	})
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	ctx := context.Background()

	connection, err := harness.seedConnection(ctx, "acme", "jira", ConnectionStatusConnected, nil,
		&ActiveCredential{TokenType: "api_key", AccessToken: "key_live_1234"})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}

	_, err = harness.service.FetchCredentialPlaintext(ctx, FetchCredentialRequest{
		TenantID:     "acme",
		ConnectionID: connection.ID,
	})
	richErr := requireTextCode(t, err, ConnectorErrorAuthFailed)
	if !strings.Contains(richErr.Message, "plaintext credential fetch is disabled") {
		t.Fatalf("unexpected message %q", richErr.Message)
	}

	// Denied reads still land in the audit trail.
	entry, ok := harness.audit.lastByAction("credential.read")
	if !ok || entry.Outcome != AuditOutcomeError {
		t.Fatalf("expected denied credential.read audit entry, got %+v", entry)
	}
}

func TestFetchCredentialPlaintextWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vault.AllowPlaintextFetch = true
	harness, err := newTestHarness(cfg, []Connector{
		newTestConnector("jira", []AuthMethod{AuthMethodAPIKey}),
	})
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	ctx := context.Background()

	connection, err := harness.seedConnection(ctx, "acme", "jira", ConnectionStatusConnected, nil,
		&ActiveCredential{TokenType: "api_key", AccessToken: "key_live_1234"})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}

	credential, err := harness.service.FetchCredentialPlaintext(ctx, FetchCredentialRequest{
		TenantID:     "acme",
		ConnectionID: connection.ID,
	})
	if err != nil {
		t.Fatalf("fetch credential: %v", err)
	}
	if credential.AccessToken != "key_live_1234" || credential.TokenType != "api_key" {
		t.Fatalf("unexpected credential %+v", credential)
	}
	if credential.ConnectionID != connection.ID {
		t.Fatalf("expected credential bound to the connection, got %+v", credential)
	}

	entry, ok := harness.audit.lastByAction("credential.read")
	if !ok || entry.Outcome != AuditOutcomeOK || entry.TargetID != connection.ID {
		t.Fatalf("expected credential.read audit entry, got %+v", entry)
	}
}

func TestFetchCredentialPlaintextCrossTenantBehavesAsMissing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vault.AllowPlaintextFetch = true
	harness, err := newTestHarness(cfg, []Connector{
		newTestConnector("jira", []AuthMethod{AuthMethodAPIKey}),
	})
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	ctx := context.Background()

	connection, err := harness.seedConnection(ctx, "acme", "jira", ConnectionStatusConnected, nil,
		&ActiveCredential{TokenType: "api_key", AccessToken: "key_live_1234"})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}

	_, err = harness.service.FetchCredentialPlaintext(ctx, FetchCredentialRequest{
		TenantID:     "rival",
		ConnectionID: connection.ID,
	})
	requireTextCode(t, err, ConnectorErrorNotFound)
}
