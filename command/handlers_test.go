package command

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-connectors/core"
)

type stubMutatingService struct {
	connectFn           func(ctx context.Context, req core.ConnectRequest) (core.ConnectResult, error)
	completeConnectFn   func(ctx context.Context, req core.CompleteConnectRequest) (core.ConnectCompletion, error)
	revokeFn            func(ctx context.Context, req core.RevokeRequest) error
	executeJobFn        func(ctx context.Context, req core.ExecuteJobRequest) (core.Job, error)
	setSyncStateFn      func(ctx context.Context, req core.SetSyncStateRequest) (core.SyncState, error)
	registerWebhookFn   func(ctx context.Context, req core.RegisterWebhookRequest) (core.WebhookHandle, error)
	unregisterWebhookFn func(ctx context.Context, req core.UnregisterWebhookRequest) error
}

func (s stubMutatingService) Connect(ctx context.Context, req core.ConnectRequest) (core.ConnectResult, error) {
	if s.connectFn == nil {
		return core.ConnectResult{}, nil
	}
	return s.connectFn(ctx, req)
}

func (s stubMutatingService) CompleteConnect(ctx context.Context, req core.CompleteConnectRequest) (core.ConnectCompletion, error) {
	if s.completeConnectFn == nil {
		return core.ConnectCompletion{}, nil
	}
	return s.completeConnectFn(ctx, req)
}

func (s stubMutatingService) Revoke(ctx context.Context, req core.RevokeRequest) error {
	if s.revokeFn == nil {
		return nil
	}
	return s.revokeFn(ctx, req)
}

func (s stubMutatingService) ExecuteJob(ctx context.Context, req core.ExecuteJobRequest) (core.Job, error) {
	if s.executeJobFn == nil {
		return core.Job{}, nil
	}
	return s.executeJobFn(ctx, req)
}

func (s stubMutatingService) SetSyncState(ctx context.Context, req core.SetSyncStateRequest) (core.SyncState, error) {
	if s.setSyncStateFn == nil {
		return core.SyncState{}, nil
	}
	return s.setSyncStateFn(ctx, req)
}

func (s stubMutatingService) RegisterWebhook(ctx context.Context, req core.RegisterWebhookRequest) (core.WebhookHandle, error) {
	if s.registerWebhookFn == nil {
		return core.WebhookHandle{}, nil
	}
	return s.registerWebhookFn(ctx, req)
}

func (s stubMutatingService) UnregisterWebhook(ctx context.Context, req core.UnregisterWebhookRequest) error {
	if s.unregisterWebhookFn == nil {
		return nil
	}
	return s.unregisterWebhookFn(ctx, req)
}

func TestConnectCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.ConnectResult{
		Handshake: &core.BeginAuthResponse{
			AuthorizationURL: "https://id.example.com/authorize?state=st",
			State:            "st",
		},
	}
	called := false

	svc := stubMutatingService{
		connectFn: func(_ context.Context, req core.ConnectRequest) (core.ConnectResult, error) {
			called = true
			if req.ConnectorID != "jira" {
				t.Fatalf("expected connector jira, got %q", req.ConnectorID)
			}
			return expected, nil
		},
	}

	cmd := NewConnectCommand(svc)
	collector := gocmd.NewResult[core.ConnectResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ConnectMessage{Request: core.ConnectRequest{
		TenantID:    "t1",
		ConnectorID: "jira",
		AuthMethod:  core.AuthMethodOAuth2,
	}})
	if err != nil {
		t.Fatalf("execute connect: %v", err)
	}
	if !called {
		t.Fatalf("expected connect service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Handshake == nil || result.Handshake.State != "st" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCompleteConnectCommand_ExecuteStoresCompletion(t *testing.T) {
	expected := core.ConnectCompletion{ConnectionID: "conn_1", Status: core.ConnectionStatusConnected}
	svc := stubMutatingService{
		completeConnectFn: func(_ context.Context, req core.CompleteConnectRequest) (core.ConnectCompletion, error) {
			if req.State != "st" || req.Code != "code-1" {
				t.Fatalf("unexpected completion payload: %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewCompleteConnectCommand(svc)
	collector := gocmd.NewResult[core.ConnectCompletion]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CompleteConnectMessage{Request: core.CompleteConnectRequest{
		TenantID:    "t1",
		ConnectorID: "jira",
		State:       "st",
		Code:        "code-1",
	}})
	if err != nil {
		t.Fatalf("execute complete connect: %v", err)
	}
	stored, ok := collector.Load()
	if !ok {
		t.Fatalf("expected completion result")
	}
	if stored.ConnectionID != expected.ConnectionID {
		t.Fatalf("unexpected completion: %#v", stored)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("revoke", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			revokeFn: func(_ context.Context, req core.RevokeRequest) error {
				called = true
				if req.ConnectionID != "conn_1" || req.Reason != "manual" {
					t.Fatalf("unexpected revoke payload: %#v", req)
				}
				return nil
			},
		}
		cmd := NewRevokeCommand(svc)
		err := cmd.Execute(context.Background(), RevokeMessage{Request: core.RevokeRequest{
			TenantID:     "t1",
			ConnectionID: "conn_1",
			Reason:       "manual",
		}})
		if err != nil {
			t.Fatalf("execute revoke: %v", err)
		}
		if !called {
			t.Fatalf("expected revoke invocation")
		}
	})

	t.Run("execute job", func(t *testing.T) {
		expected := core.Job{ID: "job_1", Kind: core.JobKindImport, Status: core.JobStatusQueued}
		svc := stubMutatingService{
			executeJobFn: func(_ context.Context, req core.ExecuteJobRequest) (core.Job, error) {
				if req.Kind != core.JobKindImport {
					t.Fatalf("unexpected job kind: %q", req.Kind)
				}
				return expected, nil
			},
		}
		cmd := NewExecuteJobCommand(svc)
		collector := gocmd.NewResult[core.Job]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := cmd.Execute(ctx, ExecuteJobMessage{Request: core.ExecuteJobRequest{
			TenantID:     "t1",
			ConnectionID: "conn_1",
			Kind:         core.JobKindImport,
		}})
		if err != nil {
			t.Fatalf("execute job: %v", err)
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected job result")
		}
		if stored.ID != expected.ID {
			t.Fatalf("unexpected job result: %#v", stored)
		}
	})

	t.Run("set sync state", func(t *testing.T) {
		expected := core.SyncState{ConnectionID: "conn_1", Cursor: "cursor-2"}
		svc := stubMutatingService{
			setSyncStateFn: func(_ context.Context, req core.SetSyncStateRequest) (core.SyncState, error) {
				if req.Cursor != "cursor-2" {
					t.Fatalf("unexpected cursor: %q", req.Cursor)
				}
				return expected, nil
			},
		}
		cmd := NewSetSyncStateCommand(svc)
		collector := gocmd.NewResult[core.SyncState]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := cmd.Execute(ctx, SetSyncStateMessage{Request: core.SetSyncStateRequest{
			TenantID:     "t1",
			ConnectionID: "conn_1",
			Cursor:       "cursor-2",
		}})
		if err != nil {
			t.Fatalf("execute set sync state: %v", err)
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected sync state result")
		}
		if stored.Cursor != expected.Cursor {
			t.Fatalf("unexpected sync state: %#v", stored)
		}
	})

	t.Run("webhooks", func(t *testing.T) {
		handle := core.WebhookHandle{ID: "wh_1", ProviderWebhookID: "remote-1"}
		calledRegister := false
		calledUnregister := false
		svc := stubMutatingService{
			registerWebhookFn: func(_ context.Context, req core.RegisterWebhookRequest) (core.WebhookHandle, error) {
				calledRegister = true
				if req.Target.URL == "" {
					t.Fatalf("expected webhook target url")
				}
				return handle, nil
			},
			unregisterWebhookFn: func(_ context.Context, req core.UnregisterWebhookRequest) error {
				calledUnregister = true
				if req.HandleID != handle.ID {
					t.Fatalf("unexpected unregister handle: %q", req.HandleID)
				}
				return nil
			},
		}

		registerCollector := gocmd.NewResult[core.WebhookHandle]()
		registerCtx := gocmd.ContextWithResult(context.Background(), registerCollector)
		if err := NewRegisterWebhookCommand(svc).Execute(registerCtx, RegisterWebhookMessage{Request: core.RegisterWebhookRequest{
			TenantID:     "t1",
			ConnectionID: "conn_1",
			Target:       core.WebhookTarget{URL: "https://example.com/hooks", Events: []string{"item.updated"}},
		}}); err != nil {
			t.Fatalf("execute register webhook: %v", err)
		}
		if !calledRegister {
			t.Fatalf("expected register invocation")
		}
		if _, ok := registerCollector.Load(); !ok {
			t.Fatalf("expected register result")
		}

		if err := NewUnregisterWebhookCommand(svc).Execute(context.Background(), UnregisterWebhookMessage{Request: core.UnregisterWebhookRequest{
			TenantID:     "t1",
			ConnectionID: "conn_1",
			HandleID:     handle.ID,
		}}); err != nil {
			t.Fatalf("execute unregister webhook: %v", err)
		}
		if !calledUnregister {
			t.Fatalf("expected unregister invocation")
		}
	})
}

func TestCommandMessages_Validate(t *testing.T) {
	cases := []struct {
		name    string
		message interface{ Validate() error }
		wantErr bool
	}{
		{"connect missing tenant", ConnectMessage{Request: core.ConnectRequest{ConnectorID: "jira", AuthMethod: core.AuthMethodAPIKey}}, true},
		{"connect bad auth method", ConnectMessage{Request: core.ConnectRequest{TenantID: "t1", ConnectorID: "jira", AuthMethod: "saml"}}, true},
		{"connect ok", ConnectMessage{Request: core.ConnectRequest{TenantID: "t1", ConnectorID: "jira", AuthMethod: core.AuthMethodOAuth2}}, false},
		{"complete missing state", CompleteConnectMessage{Request: core.CompleteConnectRequest{TenantID: "t1", ConnectorID: "jira", Code: "c"}}, true},
		{"complete ok", CompleteConnectMessage{Request: core.CompleteConnectRequest{TenantID: "t1", ConnectorID: "jira", State: "st", Code: "c"}}, false},
		{"revoke missing connection", RevokeMessage{Request: core.RevokeRequest{TenantID: "t1"}}, true},
		{"job bad kind", ExecuteJobMessage{Request: core.ExecuteJobRequest{TenantID: "t1", ConnectionID: "conn_1", Kind: "export"}}, true},
		{"job ok", ExecuteJobMessage{Request: core.ExecuteJobRequest{TenantID: "t1", ConnectionID: "conn_1", Kind: core.JobKindSync}}, false},
		{"sync state empty cursor ok", SetSyncStateMessage{Request: core.SetSyncStateRequest{TenantID: "t1", ConnectionID: "conn_1"}}, false},
		{"webhook missing url", RegisterWebhookMessage{Request: core.RegisterWebhookRequest{TenantID: "t1", ConnectionID: "conn_1"}}, true},
		{"unregister needs handle", UnregisterWebhookMessage{Request: core.UnregisterWebhookRequest{TenantID: "t1", ConnectionID: "conn_1"}}, true},
		{"unregister by provider id ok", UnregisterWebhookMessage{Request: core.UnregisterWebhookRequest{TenantID: "t1", ConnectionID: "conn_1", ProviderWebhookID: "remote-1"}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.message.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
