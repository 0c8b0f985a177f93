package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

const (
	TypeResolveConnector = "connectors.query.connector.resolve"
	TypeListConnectors   = "connectors.query.connector.list"
	TypeGetConnector     = "connectors.query.connector.get"
	TypeListConnections  = "connectors.query.connection.list"
	TypeGetJob           = "connectors.query.job.get"
	TypeGetSyncState     = "connectors.query.sync_state.get"
	TypeListContainers   = "connectors.query.containers.list"
	TypeListItems        = "connectors.query.items.list"
	TypeListComments     = "connectors.query.comments.list"
	TypeListAudit        = "connectors.query.audit.list"
)

type ResolveConnectorMessage struct {
	TenantID    string
	ConnectorID string
}

func (ResolveConnectorMessage) Type() string { return TypeResolveConnector }

func (m ResolveConnectorMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.ConnectorID) == "" {
		return fmt.Errorf("query: connector id is required")
	}
	return nil
}

type ListConnectorsMessage struct {
	TenantID string
}

func (ListConnectorsMessage) Type() string { return TypeListConnectors }

func (m ListConnectorsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	return nil
}

type GetConnectorMessage struct {
	TenantID    string
	ConnectorID string
}

func (GetConnectorMessage) Type() string { return TypeGetConnector }

func (m GetConnectorMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.ConnectorID) == "" {
		return fmt.Errorf("query: connector id is required")
	}
	return nil
}

type ListConnectionsMessage struct {
	TenantID    string
	ConnectorID string
}

func (ListConnectionsMessage) Type() string { return TypeListConnections }

func (m ListConnectionsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	return nil
}

type GetJobMessage struct {
	TenantID string
	JobID    string
}

func (GetJobMessage) Type() string { return TypeGetJob }

func (m GetJobMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("query: job id is required")
	}
	return nil
}

type GetSyncStateMessage struct {
	Request core.SyncStateRequest
}

func (GetSyncStateMessage) Type() string { return TypeGetSyncState }

func (m GetSyncStateMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("query: connection id is required")
	}
	return nil
}

type ListContainersMessage struct {
	Request core.ListContainersRequest
}

func (ListContainersMessage) Type() string { return TypeListContainers }

func (m ListContainersMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("query: connection id is required")
	}
	return nil
}

type ListItemsMessage struct {
	Request core.ListItemsRequest
}

func (ListItemsMessage) Type() string { return TypeListItems }

func (m ListItemsMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("query: connection id is required")
	}
	if strings.TrimSpace(m.Request.ContainerID) == "" {
		return fmt.Errorf("query: container id is required")
	}
	return nil
}

type ListCommentsMessage struct {
	Request core.ListCommentsRequest
}

func (ListCommentsMessage) Type() string { return TypeListComments }

func (m ListCommentsMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if strings.TrimSpace(m.Request.ConnectionID) == "" {
		return fmt.Errorf("query: connection id is required")
	}
	if strings.TrimSpace(m.Request.ItemID) == "" {
		return fmt.Errorf("query: item id is required")
	}
	return nil
}

type ListAuditMessage struct {
	Filter core.AuditFilter
}

func (ListAuditMessage) Type() string { return TypeListAudit }

func (m ListAuditMessage) Validate() error {
	if strings.TrimSpace(m.Filter.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if m.Filter.Page < 0 {
		return fmt.Errorf("query: page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return fmt.Errorf("query: per_page must be >= 0")
	}
	return nil
}
