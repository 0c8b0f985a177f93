package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-connectors/core"
)

var (
	_ gocmd.Querier[ResolveConnectorMessage, core.ConnectorDescriptor] = (*ResolveConnectorQuery)(nil)
	_ gocmd.Querier[ListConnectorsMessage, []core.ConnectorSummary]    = (*ListConnectorsQuery)(nil)
	_ gocmd.Querier[GetConnectorMessage, core.ConnectorSummary]        = (*GetConnectorQuery)(nil)
	_ gocmd.Querier[ListConnectionsMessage, []core.Connection]         = (*ListConnectionsQuery)(nil)
	_ gocmd.Querier[GetJobMessage, core.Job]                           = (*GetJobQuery)(nil)
	_ gocmd.Querier[GetSyncStateMessage, core.SyncState]               = (*GetSyncStateQuery)(nil)
	_ gocmd.Querier[ListContainersMessage, core.Page[core.Container]]  = (*ListContainersQuery)(nil)
	_ gocmd.Querier[ListItemsMessage, core.Page[core.Item]]            = (*ListItemsQuery)(nil)
	_ gocmd.Querier[ListCommentsMessage, core.Page[core.Comment]]      = (*ListCommentsQuery)(nil)
	_ gocmd.Querier[ListAuditMessage, core.AuditPage]                  = (*ListAuditQuery)(nil)
)
