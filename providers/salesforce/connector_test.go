package salesforce

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers/devkit"
)

func oauthConfig() core.ConnectorConfig {
	return core.ConnectorConfig{
		TenantID:     "t1",
		ConnectionID: "conn_1",
		Settings: map[string]any{
			SettingBaseURL: "https://acme.my.salesforce.com",
		},
		Credential: core.ActiveCredential{
			TokenType:    "bearer",
			AccessToken:  "atk_1",
			RefreshToken: "rtk_9",
		},
	}
}

func newTestConnector(t *testing.T, adapter core.TransportAdapter) *Connector {
	t.Helper()
	connector, err := New(Config{
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		Transport:    adapter,
	})
	if err != nil {
		t.Fatalf("new salesforce connector: %v", err)
	}
	return connector
}

func TestConnector_ListContainersWindowsQueryableObjects(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter("rest", devkit.JSONScript(200, `{
		"sobjects": [
			{"name": "Account", "label": "Account", "queryable": true},
			{"name": "AccountHistory", "label": "Account History", "queryable": false},
			{"name": "Invoice__c", "label": "Invoice", "queryable": true, "custom": true},
			{"name": "Lead", "label": "Lead", "queryable": true}
		]
	}`))
	connector := newTestConnector(t, adapter)

	page, err := connector.ListContainers(context.Background(), oauthConfig(), core.PageRequest{Limit: 2})
	if err != nil {
		t.Fatalf("list containers: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected two containers, got %d", len(page.Items))
	}
	if page.Items[0].ID != "Account" || page.Items[0].Kind != "object" {
		t.Fatalf("unexpected container mapping: %+v", page.Items[0])
	}
	if page.Items[1].ID != "Invoice__c" || page.Items[1].Meta["custom"] != true {
		t.Fatalf("expected custom object second, got %+v", page.Items[1])
	}
	if page.NextCursor == nil {
		t.Fatalf("expected next cursor with a third queryable object left")
	}
	offset, err := core.DecodeCursor(*page.NextCursor)
	if err != nil || offset != 2 {
		t.Fatalf("expected offset cursor 2, got %d err=%v", offset, err)
	}

	request, ok := adapter.LastRequest()
	if !ok {
		t.Fatalf("expected a captured request")
	}
	if request.URL != "https://acme.my.salesforce.com/services/data/v59.0/sobjects" {
		t.Fatalf("unexpected request url %q", request.URL)
	}
	if request.Headers["Authorization"] != "Bearer atk_1" {
		t.Fatalf("expected bearer auth header, got %q", request.Headers["Authorization"])
	}
}

func TestConnector_ListItemsPagesWithQueryLocator(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter("rest",
		devkit.JSONScript(200, `{
			"totalSize": 3,
			"done": false,
			"nextRecordsUrl": "/services/data/v59.0/query/01g000-2",
			"records": [
				{"attributes": {"type": "Account", "url": "/services/data/v59.0/sobjects/Account/001A"}, "Id": "001A", "Name": "Acme Corp"},
				{"attributes": {"type": "Account"}, "Id": "001B"}
			]
		}`),
		devkit.JSONScript(200, `{
			"totalSize": 3,
			"done": true,
			"records": [
				{"attributes": {"type": "Account"}, "Id": "001C", "Name": "Globex"}
			]
		}`),
	)
	connector := newTestConnector(t, adapter)

	page, err := connector.ListItems(context.Background(), oauthConfig(), "Account", core.PageRequest{Limit: 2})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected two records, got %d", len(page.Items))
	}
	if page.Items[0].ID != "001A" || page.Items[0].Name != "Acme Corp" || page.Items[0].ContainerID != "Account" {
		t.Fatalf("unexpected record mapping: %+v", page.Items[0])
	}
	if page.Items[0].Meta["url"] != "/services/data/v59.0/sobjects/Account/001A" {
		t.Fatalf("unexpected record meta: %+v", page.Items[0].Meta)
	}
	if page.Items[1].Name != "001B" {
		t.Fatalf("expected id fallback for nameless record, got %q", page.Items[1].Name)
	}
	if page.NextCursor == nil || *page.NextCursor != "/services/data/v59.0/query/01g000-2" {
		t.Fatalf("expected query locator cursor, got %v", page.NextCursor)
	}

	request, ok := adapter.LastRequest()
	if !ok {
		t.Fatalf("expected a captured request")
	}
	if request.Query["q"] != "SELECT Id, Name FROM Account ORDER BY CreatedDate DESC LIMIT 2" {
		t.Fatalf("unexpected soql %q", request.Query["q"])
	}

	page, err = connector.ListItems(context.Background(), oauthConfig(), "Account", core.PageRequest{Cursor: *page.NextCursor})
	if err != nil {
		t.Fatalf("follow locator: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "001C" {
		t.Fatalf("unexpected second batch: %+v", page.Items)
	}
	if page.NextCursor != nil {
		t.Fatalf("expected drained listing to have no next cursor")
	}

	request, ok = adapter.LastRequest()
	if !ok {
		t.Fatalf("expected a captured request")
	}
	if request.URL != "https://acme.my.salesforce.com/services/data/v59.0/query/01g000-2" {
		t.Fatalf("expected locator follow-up url, got %q", request.URL)
	}
}

func TestConnector_ListItemsRejectsBadInput(t *testing.T) {
	connector := newTestConnector(t, devkit.NewFakeTransportAdapter("rest"))

	if _, err := connector.ListItems(context.Background(), oauthConfig(), "Account; DROP", core.PageRequest{}); err == nil {
		t.Fatalf("expected invalid object name to error")
	}
	if _, err := connector.ListItems(context.Background(), oauthConfig(), "Account", core.PageRequest{Cursor: "https://evil.example/steal"}); err == nil {
		t.Fatalf("expected non-locator cursor to error")
	}
}

func TestConnector_CommentsAndWebhooksNotAdvertised(t *testing.T) {
	connector := newTestConnector(t, devkit.NewFakeTransportAdapter("rest"))

	_, err := connector.ListComments(context.Background(), oauthConfig(), "001A", core.PageRequest{})
	if !errors.Is(err, core.ErrCapabilityNotSupported) {
		t.Fatalf("expected capability sentinel, got %v", err)
	}
	if err := devkit.ValidateConnectorConformance(context.Background(), connector); err != nil {
		t.Fatalf("expected conformant connector, got %v", err)
	}
}

func TestConnector_ProbeReadsAPIVersions(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter("rest", devkit.JSONScript(200, `[
		{"label": "Winter '24", "url": "/services/data/v58.0", "version": "58.0"},
		{"label": "Spring '24", "url": "/services/data/v59.0", "version": "59.0"}
	]`))
	connector := newTestConnector(t, adapter)

	probe, err := connector.Probe(context.Background(), oauthConfig())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !probe.Reachable || probe.Details["api_version"] != "59.0" {
		t.Fatalf("unexpected probe result: %+v", probe)
	}
}

func TestConnector_ExecuteSyncOrdersByModstamp(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter("rest", devkit.JSONScript(200, `{
		"totalSize": 1,
		"done": true,
		"records": [{"attributes": {"type": "Account"}, "Id": "001A", "Name": "Acme Corp"}]
	}`))
	connector := newTestConnector(t, adapter)

	result, err := connector.Execute(context.Background(), oauthConfig(), core.JobSpec{
		Kind:       core.JobKindSync,
		Parameters: map[string]any{"container_id": "Account", "limit": 10},
	})
	if err != nil {
		t.Fatalf("execute sync: %v", err)
	}
	if result.Payload["items_seen"] != 1 {
		t.Fatalf("unexpected sync payload: %+v", result.Payload)
	}

	request, ok := adapter.LastRequest()
	if !ok {
		t.Fatalf("expected a captured request")
	}
	if request.Query["q"] != "SELECT Id, Name FROM Account ORDER BY SystemModstamp DESC LIMIT 10" {
		t.Fatalf("unexpected sync soql %q", request.Query["q"])
	}
}

func TestConnector_RevokeCredentialPrefersRefreshToken(t *testing.T) {
	var revoked string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse revoke form: %v", err)
		}
		revoked = r.PostFormValue("token")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	connector, err := New(Config{
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		RevokeURL:    server.URL,
		Transport:    devkit.NewFakeTransportAdapter("rest"),
	})
	if err != nil {
		t.Fatalf("new salesforce connector: %v", err)
	}

	if err := connector.RevokeCredential(context.Background(), oauthConfig()); err != nil {
		t.Fatalf("revoke credential: %v", err)
	}
	if revoked != "rtk_9" {
		t.Fatalf("expected refresh token revoked, got %q", revoked)
	}
}

func TestConnector_SurfacesSalesforceErrorPayloads(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter("rest",
		devkit.JSONScript(401, `[{"message": "Session expired or invalid", "errorCode": "INVALID_SESSION_ID"}]`),
	)
	connector := newTestConnector(t, adapter)

	_, err := connector.ListContainers(context.Background(), oauthConfig(), core.PageRequest{})
	if err == nil {
		t.Fatalf("expected auth error")
	}
	if !strings.Contains(err.Error(), "Session expired or invalid") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
}
