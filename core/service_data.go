package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// listCall carries everything a data-plane read needs after the shared
// preflight: the resolved connector, the per-call config with the
// decrypted credential, and the normalized page request.
type listCall struct {
	connection Connection
	connector  Connector
	cfg        ConnectorConfig
	page       PageRequest
}

// prepareListCall runs the preflight every list operation shares: load the
// connection tenant scoped, require it connected, check the capability,
// decrypt the credential, consult the rate limiter, normalize the page.
func (s *Service) prepareListCall(ctx context.Context, tenantID, connectionID string, capability Capability, page PageRequest, bucket string) (listCall, error) {
	connection, err := s.getConnection(ctx, tenantID, connectionID)
	if err != nil {
		return listCall{}, err
	}
	if err := s.requireUsableConnection(connection, false); err != nil {
		return listCall{}, err
	}
	connector, err := s.resolveConnector(connection.ConnectorID)
	if err != nil {
		return listCall{}, err
	}
	if err := s.requireCapability(connector, capability); err != nil {
		return listCall{}, err
	}
	credential, err := s.activeCredential(ctx, connection)
	if err != nil {
		return listCall{}, err
	}
	if err := s.beforeProviderCall(ctx, connection.ConnectorID, connection.TenantID, bucket); err != nil {
		return listCall{}, err
	}
	return listCall{
		connection: connection,
		connector:  connector,
		cfg: ConnectorConfig{
			TenantID:     connection.TenantID,
			ConnectionID: connection.ID,
			Settings:     connection.Settings,
			Credential:   credential,
		},
		page: s.normalizePage(page),
	}, nil
}

// normalizePage applies the configured default and ceiling on top of the
// package-level clamp.
func (s *Service) normalizePage(page PageRequest) PageRequest {
	fallback := PageLimitDefault
	ceiling := PageLimitMax
	if s != nil {
		if s.config.Pagination.DefaultLimit > 0 {
			fallback = s.config.Pagination.DefaultLimit
		}
		if s.config.Pagination.MaxLimit > 0 {
			ceiling = s.config.Pagination.MaxLimit
		}
	}
	normalized := NormalizePageRequest(page, fallback)
	if normalized.Limit > ceiling {
		normalized.Limit = ceiling
	}
	return normalized
}

// ListContainers pages through a connection's top-level collections.
func (s *Service) ListContainers(ctx context.Context, req ListContainersRequest) (page Page[Container], err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
	}
	defer func() {
		fields["item_count"] = len(page.Items)
		s.observeOperation(ctx, startedAt, "list_containers", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "containers.list",
			ConnectionID: req.ConnectionID,
			TargetType:   "connection",
			TargetID:     req.ConnectionID,
		}, err)
	}()

	call, err := s.prepareListCall(ctx, req.TenantID, req.ConnectionID, CapabilityContainers, req.Page, "containers")
	if err != nil {
		return Page[Container]{}, err
	}
	fields["connector_id"] = call.connection.ConnectorID

	page, err = s.listContainersOnce(ctx, call)
	if s.shouldRetryProviderCall(ctx, err) {
		page, err = s.listContainersOnce(ctx, call)
	}
	if err != nil {
		return Page[Container]{}, err
	}
	return page, nil
}

func (s *Service) listContainersOnce(ctx context.Context, call listCall) (Page[Container], error) {
	callCtx, cancel := providerContext(ctx, s.callTimeout())
	defer cancel()
	page, err := call.connector.ListContainers(callCtx, call.cfg, call.page)
	if err != nil {
		return Page[Container]{}, s.mapError(err)
	}
	return page, nil
}

// ListItems pages through the items of one container.
func (s *Service) ListItems(ctx context.Context, req ListItemsRequest) (page Page[Item], err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
		"container_id":  req.ContainerID,
	}
	defer func() {
		fields["item_count"] = len(page.Items)
		s.observeOperation(ctx, startedAt, "list_items", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "items.list",
			ConnectionID: req.ConnectionID,
			TargetType:   "container",
			TargetID:     req.ContainerID,
		}, err)
	}()

	if strings.TrimSpace(req.ContainerID) == "" {
		err = s.badInput("container id is required")
		return Page[Item]{}, err
	}
	call, err := s.prepareListCall(ctx, req.TenantID, req.ConnectionID, CapabilityItems, req.Page, "items")
	if err != nil {
		return Page[Item]{}, err
	}
	fields["connector_id"] = call.connection.ConnectorID

	page, err = s.listItemsOnce(ctx, call, req.ContainerID)
	if s.shouldRetryProviderCall(ctx, err) {
		page, err = s.listItemsOnce(ctx, call, req.ContainerID)
	}
	if err != nil {
		return Page[Item]{}, err
	}
	return page, nil
}

func (s *Service) listItemsOnce(ctx context.Context, call listCall, containerID string) (Page[Item], error) {
	callCtx, cancel := providerContext(ctx, s.callTimeout())
	defer cancel()
	page, err := call.connector.ListItems(callCtx, call.cfg, containerID, call.page)
	if err != nil {
		return Page[Item]{}, s.mapError(err)
	}
	return page, nil
}

// ListComments pages through the comment thread of one item.
func (s *Service) ListComments(ctx context.Context, req ListCommentsRequest) (page Page[Comment], err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
		"item_id":       req.ItemID,
	}
	defer func() {
		fields["item_count"] = len(page.Items)
		s.observeOperation(ctx, startedAt, "list_comments", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "comments.list",
			ConnectionID: req.ConnectionID,
			TargetType:   "item",
			TargetID:     req.ItemID,
		}, err)
	}()

	if strings.TrimSpace(req.ItemID) == "" {
		err = s.badInput("item id is required")
		return Page[Comment]{}, err
	}
	call, err := s.prepareListCall(ctx, req.TenantID, req.ConnectionID, CapabilityComments, req.Page, "comments")
	if err != nil {
		return Page[Comment]{}, err
	}
	fields["connector_id"] = call.connection.ConnectorID

	page, err = s.listCommentsOnce(ctx, call, req.ItemID)
	if s.shouldRetryProviderCall(ctx, err) {
		page, err = s.listCommentsOnce(ctx, call, req.ItemID)
	}
	if err != nil {
		return Page[Comment]{}, err
	}
	return page, nil
}

func (s *Service) listCommentsOnce(ctx context.Context, call listCall, itemID string) (Page[Comment], error) {
	callCtx, cancel := providerContext(ctx, s.callTimeout())
	defer cancel()
	page, err := call.connector.ListComments(callCtx, call.cfg, itemID, call.page)
	if err != nil {
		return Page[Comment]{}, s.mapError(err)
	}
	return page, nil
}

// GetSyncState reads a connection's incremental cursor. A connection that
// never stored one reports not found rather than an empty cursor, so
// callers can tell "full sync needed" apart from "provider returned an
// empty checkpoint".
func (s *Service) GetSyncState(ctx context.Context, req SyncStateRequest) (state SyncState, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_sync_state", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "sync_state.get",
			ConnectionID: req.ConnectionID,
			TargetType:   "sync_state",
			TargetID:     req.ConnectionID,
		}, err)
	}()

	if s.syncStateStore == nil {
		err = s.mapError(fmt.Errorf("core: sync state store is not configured"))
		return SyncState{}, err
	}
	connection, err := s.getConnection(ctx, req.TenantID, req.ConnectionID)
	if err != nil {
		return SyncState{}, err
	}
	state, err = s.syncStateStore.Get(ctx, connection.TenantID, connection.ID)
	if err != nil {
		err = s.mapError(err)
		return SyncState{}, err
	}
	return state, nil
}

// SetSyncState stores a connection's cursor, overwriting any previous
// value. An empty cursor is legal and distinct from having no state at
// all. Concurrent writers race last-write-wins; sync scheduling above this
// layer is expected to serialize per connection.
func (s *Service) SetSyncState(ctx context.Context, req SetSyncStateRequest) (state SyncState, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_sync_state", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "sync_state.set",
			ConnectionID: req.ConnectionID,
			TargetType:   "sync_state",
			TargetID:     req.ConnectionID,
		}, err)
	}()

	if s.syncStateStore == nil {
		err = s.mapError(fmt.Errorf("core: sync state store is not configured"))
		return SyncState{}, err
	}
	connection, err := s.getConnection(ctx, req.TenantID, req.ConnectionID)
	if err != nil {
		return SyncState{}, err
	}
	state, err = s.syncStateStore.Put(ctx, PutSyncStateInput{
		TenantID:     connection.TenantID,
		ConnectionID: connection.ID,
		Cursor:       req.Cursor,
	})
	if err != nil {
		err = s.mapError(err)
		return SyncState{}, err
	}
	return state, nil
}
