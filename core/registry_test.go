package core

import (
	"errors"
	"strings"
	"testing"
)

func TestConnectorRegistryRegisterAndGet(t *testing.T) {
	registry := NewConnectorRegistry()
	jira := newTestConnector("jira", []AuthMethod{AuthMethodAPIKey}, CapabilityProbe)

	if err := registry.Register(jira); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, ok := registry.Get("jira")
	if !ok {
		t.Fatalf("expected jira to be registered")
	}
	if got.Descriptor().ID != "jira" {
		t.Fatalf("expected descriptor id jira, got %q", got.Descriptor().ID)
	}

	trimmed, ok := registry.Get("  jira  ")
	if !ok || trimmed.Descriptor().ID != "jira" {
		t.Fatalf("expected lookup to trim the id")
	}

	if _, ok := registry.Get("unknown"); ok {
		t.Fatalf("expected unknown connector to be missing")
	}
	if _, ok := registry.Get(""); ok {
		t.Fatalf("expected empty id lookup to miss")
	}
}

func TestConnectorRegistryRejectsDuplicates(t *testing.T) {
	registry := NewConnectorRegistry()
	if err := registry.Register(newTestConnector("jira", []AuthMethod{AuthMethodAPIKey})); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	err := registry.Register(newTestConnector("jira", []AuthMethod{AuthMethodOAuth2}))
	if err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestConnectorRegistryRejectsInvalidDescriptors(t *testing.T) {
	registry := NewConnectorRegistry()

	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil connector to be rejected")
	}
	if err := registry.Register(&testConnector{descriptor: ConnectorDescriptor{Group: ConnectorGroupSaaS, AuthMethods: []AuthMethod{AuthMethodAPIKey}}}); err == nil {
		t.Fatalf("expected missing id to be rejected")
	}
	if err := registry.Register(&testConnector{descriptor: ConnectorDescriptor{ID: "x", Group: "other", AuthMethods: []AuthMethod{AuthMethodAPIKey}}}); err == nil {
		t.Fatalf("expected invalid group to be rejected")
	}
	if err := registry.Register(&testConnector{descriptor: ConnectorDescriptor{ID: "x", Group: ConnectorGroupDB}}); err == nil {
		t.Fatalf("expected missing auth methods to be rejected")
	}
}

func TestConnectorRegistrySealBlocksRegistration(t *testing.T) {
	registry := NewConnectorRegistry()
	if err := registry.Register(newTestConnector("jira", []AuthMethod{AuthMethodAPIKey})); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	registry.Seal()
	if !registry.Sealed() {
		t.Fatalf("expected registry to report sealed")
	}

	err := registry.Register(newTestConnector("confluence", []AuthMethod{AuthMethodAPIKey}))
	if !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("expected ErrRegistrySealed, got %v", err)
	}

	if _, ok := registry.Get("jira"); !ok {
		t.Fatalf("expected reads to keep working after seal")
	}
}

func TestConnectorRegistryListSortsByID(t *testing.T) {
	registry := NewConnectorRegistry()
	for _, id := range []string{"salesforce", "jira", "confluence", "postgres"} {
		if err := registry.Register(newTestConnector(id, []AuthMethod{AuthMethodAPIKey})); err != nil {
			t.Fatalf("register %s failed: %v", id, err)
		}
	}

	listed := registry.List()
	want := []string{"confluence", "jira", "postgres", "salesforce"}
	if len(listed) != len(want) {
		t.Fatalf("expected %d connectors, got %d", len(want), len(listed))
	}
	for i, connector := range listed {
		if connector.Descriptor().ID != want[i] {
			t.Fatalf("expected position %d to be %q, got %q", i, want[i], connector.Descriptor().ID)
		}
	}
}
