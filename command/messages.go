package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

const (
	TypeConnect           = "connectors.command.connect"
	TypeCompleteConnect   = "connectors.command.connect.complete"
	TypeRevoke            = "connectors.command.revoke"
	TypeExecuteJob        = "connectors.command.job.execute"
	TypeSetSyncState      = "connectors.command.sync_state.set"
	TypeRegisterWebhook   = "connectors.command.webhook.register"
	TypeUnregisterWebhook = "connectors.command.webhook.unregister"
)

type ConnectMessage struct {
	Request core.ConnectRequest
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectorID) == "" {
		return fmt.Errorf("command: connector id is required")
	}
	switch m.Request.AuthMethod {
	case core.AuthMethodAPIKey, core.AuthMethodOAuth2:
	default:
		return fmt.Errorf("command: auth method %q is not supported", m.Request.AuthMethod)
	}
	return nil
}

type CompleteConnectMessage struct {
	Request core.CompleteConnectRequest
}

func (CompleteConnectMessage) Type() string { return TypeCompleteConnect }

func (m CompleteConnectMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectorID) == "" {
		return fmt.Errorf("command: connector id is required")
	}
	if strings.TrimSpace(m.Request.State) == "" {
		return fmt.Errorf("command: handshake state is required")
	}
	if strings.TrimSpace(m.Request.Code) == "" {
		return fmt.Errorf("command: authorization code is required")
	}
	return nil
}

type RevokeMessage struct {
	Request core.RevokeRequest
}

func (RevokeMessage) Type() string { return TypeRevoke }

func (m RevokeMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	return nil
}

type ExecuteJobMessage struct {
	Request core.ExecuteJobRequest
}

func (ExecuteJobMessage) Type() string { return TypeExecuteJob }

func (m ExecuteJobMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if _, err := core.ParseJobKind(string(m.Request.Kind)); err != nil {
		return fmt.Errorf("command: job kind %q is not supported", m.Request.Kind)
	}
	return nil
}

type SetSyncStateMessage struct {
	Request core.SetSyncStateRequest
}

func (SetSyncStateMessage) Type() string { return TypeSetSyncState }

func (m SetSyncStateMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	return nil
}

type RegisterWebhookMessage struct {
	Request core.RegisterWebhookRequest
}

func (RegisterWebhookMessage) Type() string { return TypeRegisterWebhook }

func (m RegisterWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if strings.TrimSpace(m.Request.Target.URL) == "" {
		return fmt.Errorf("command: webhook target url is required")
	}
	return nil
}

type UnregisterWebhookMessage struct {
	Request core.UnregisterWebhookRequest
}

func (UnregisterWebhookMessage) Type() string { return TypeUnregisterWebhook }

func (m UnregisterWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if strings.TrimSpace(m.Request.HandleID) == "" && strings.TrimSpace(m.Request.ProviderWebhookID) == "" {
		return fmt.Errorf("command: webhook handle id or provider webhook id is required")
	}
	return nil
}
