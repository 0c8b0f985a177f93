package query

import (
	"context"

	"github.com/goliatone/go-connectors/core"
)

// CatalogReader is the read-side slice of the connector service that serves
// descriptor and connection lookups.
type CatalogReader interface {
	Resolve(ctx context.Context, tenantID, connectorID string) (core.ConnectorDescriptor, error)
	ListConnectors(ctx context.Context, tenantID string) ([]core.ConnectorSummary, error)
	GetConnector(ctx context.Context, tenantID, connectorID string) (core.ConnectorSummary, error)
	ListConnections(ctx context.Context, tenantID, connectorID string) ([]core.Connection, error)
}

// DataReader serves provider-backed reads and the sync cursor.
type DataReader interface {
	ListContainers(ctx context.Context, req core.ListContainersRequest) (core.Page[core.Container], error)
	ListItems(ctx context.Context, req core.ListItemsRequest) (core.Page[core.Item], error)
	ListComments(ctx context.Context, req core.ListCommentsRequest) (core.Page[core.Comment], error)
	GetSyncState(ctx context.Context, req core.SyncStateRequest) (core.SyncState, error)
}

type JobReader interface {
	GetJob(ctx context.Context, tenantID, jobID string) (core.Job, error)
}

type AuditReader interface {
	ListAudit(ctx context.Context, filter core.AuditFilter) (core.AuditPage, error)
}

type ResolveConnectorQuery struct {
	reader CatalogReader
}

func NewResolveConnectorQuery(reader CatalogReader) *ResolveConnectorQuery {
	return &ResolveConnectorQuery{reader: reader}
}

func (q *ResolveConnectorQuery) Query(ctx context.Context, msg ResolveConnectorMessage) (core.ConnectorDescriptor, error) {
	if q == nil || q.reader == nil {
		return core.ConnectorDescriptor{}, queryDependencyError("query: catalog reader is required")
	}
	return q.reader.Resolve(ctx, msg.TenantID, msg.ConnectorID)
}

type ListConnectorsQuery struct {
	reader CatalogReader
}

func NewListConnectorsQuery(reader CatalogReader) *ListConnectorsQuery {
	return &ListConnectorsQuery{reader: reader}
}

func (q *ListConnectorsQuery) Query(ctx context.Context, msg ListConnectorsMessage) ([]core.ConnectorSummary, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: catalog reader is required")
	}
	return q.reader.ListConnectors(ctx, msg.TenantID)
}

type GetConnectorQuery struct {
	reader CatalogReader
}

func NewGetConnectorQuery(reader CatalogReader) *GetConnectorQuery {
	return &GetConnectorQuery{reader: reader}
}

func (q *GetConnectorQuery) Query(ctx context.Context, msg GetConnectorMessage) (core.ConnectorSummary, error) {
	if q == nil || q.reader == nil {
		return core.ConnectorSummary{}, queryDependencyError("query: catalog reader is required")
	}
	return q.reader.GetConnector(ctx, msg.TenantID, msg.ConnectorID)
}

type ListConnectionsQuery struct {
	reader CatalogReader
}

func NewListConnectionsQuery(reader CatalogReader) *ListConnectionsQuery {
	return &ListConnectionsQuery{reader: reader}
}

func (q *ListConnectionsQuery) Query(ctx context.Context, msg ListConnectionsMessage) ([]core.Connection, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: catalog reader is required")
	}
	return q.reader.ListConnections(ctx, msg.TenantID, msg.ConnectorID)
}

type GetJobQuery struct {
	reader JobReader
}

func NewGetJobQuery(reader JobReader) *GetJobQuery {
	return &GetJobQuery{reader: reader}
}

func (q *GetJobQuery) Query(ctx context.Context, msg GetJobMessage) (core.Job, error) {
	if q == nil || q.reader == nil {
		return core.Job{}, queryDependencyError("query: job reader is required")
	}
	return q.reader.GetJob(ctx, msg.TenantID, msg.JobID)
}

type GetSyncStateQuery struct {
	reader DataReader
}

func NewGetSyncStateQuery(reader DataReader) *GetSyncStateQuery {
	return &GetSyncStateQuery{reader: reader}
}

func (q *GetSyncStateQuery) Query(ctx context.Context, msg GetSyncStateMessage) (core.SyncState, error) {
	if q == nil || q.reader == nil {
		return core.SyncState{}, queryDependencyError("query: data reader is required")
	}
	return q.reader.GetSyncState(ctx, msg.Request)
}

type ListContainersQuery struct {
	reader DataReader
}

func NewListContainersQuery(reader DataReader) *ListContainersQuery {
	return &ListContainersQuery{reader: reader}
}

func (q *ListContainersQuery) Query(ctx context.Context, msg ListContainersMessage) (core.Page[core.Container], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.Container]{}, queryDependencyError("query: data reader is required")
	}
	return q.reader.ListContainers(ctx, msg.Request)
}

type ListItemsQuery struct {
	reader DataReader
}

func NewListItemsQuery(reader DataReader) *ListItemsQuery {
	return &ListItemsQuery{reader: reader}
}

func (q *ListItemsQuery) Query(ctx context.Context, msg ListItemsMessage) (core.Page[core.Item], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.Item]{}, queryDependencyError("query: data reader is required")
	}
	return q.reader.ListItems(ctx, msg.Request)
}

type ListCommentsQuery struct {
	reader DataReader
}

func NewListCommentsQuery(reader DataReader) *ListCommentsQuery {
	return &ListCommentsQuery{reader: reader}
}

func (q *ListCommentsQuery) Query(ctx context.Context, msg ListCommentsMessage) (core.Page[core.Comment], error) {
	if q == nil || q.reader == nil {
		return core.Page[core.Comment]{}, queryDependencyError("query: data reader is required")
	}
	return q.reader.ListComments(ctx, msg.Request)
}

type ListAuditQuery struct {
	reader AuditReader
}

func NewListAuditQuery(reader AuditReader) *ListAuditQuery {
	return &ListAuditQuery{reader: reader}
}

func (q *ListAuditQuery) Query(ctx context.Context, msg ListAuditMessage) (core.AuditPage, error) {
	if q == nil || q.reader == nil {
		return core.AuditPage{}, queryDependencyError("query: audit reader is required")
	}
	return q.reader.ListAudit(ctx, msg.Filter)
}
