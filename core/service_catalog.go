package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *Service) Resolve(ctx context.Context, tenantID, connectorID string) (descriptor ConnectorDescriptor, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":    tenantID,
		"connector_id": connectorID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "resolve", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:    tenantID,
			Action:      "connector.resolve",
			ConnectorID: connectorID,
			TargetType:  "connector",
			TargetID:    connectorID,
		}, err)
	}()

	connector, err := s.resolveConnector(connectorID)
	if err != nil {
		return ConnectorDescriptor{}, err
	}
	return connector.Descriptor(), nil
}

func (s *Service) ListConnectors(ctx context.Context, tenantID string) (summaries []ConnectorSummary, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": tenantID,
	}
	defer func() {
		fields["count"] = len(summaries)
		s.observeOperation(ctx, startedAt, "list_connectors", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:   tenantID,
			Action:     "connector.list",
			TargetType: "connector",
		}, err)
	}()

	if s == nil || s.registry == nil {
		err = s.mapError(fmt.Errorf("core: registry unavailable"))
		return nil, err
	}

	decorations := map[string]Connection{}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID != "" && s.connectionStore != nil {
		connections, findErr := s.connectionStore.FindByTenant(ctx, tenantID, "")
		if findErr != nil {
			err = s.mapError(findErr)
			return nil, err
		}
		decorations = pickDisplayConnections(connections)
	}

	connectors := s.registry.List()
	summaries = make([]ConnectorSummary, 0, len(connectors))
	for _, connector := range connectors {
		descriptor := connector.Descriptor()
		summary := ConnectorSummary{
			Descriptor: descriptor,
			Status:     ConnectorStatusNotConnected,
		}
		if connection, ok := decorations[descriptor.ID]; ok {
			summary.Status = string(connection.Status)
			summary.ConnectionID = connection.ID
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Service) GetConnector(ctx context.Context, tenantID, connectorID string) (summary ConnectorSummary, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":    tenantID,
		"connector_id": connectorID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_connector", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:    tenantID,
			Action:      "connector.get",
			ConnectorID: connectorID,
			TargetType:  "connector",
			TargetID:    connectorID,
		}, err)
	}()

	connector, err := s.resolveConnector(connectorID)
	if err != nil {
		return ConnectorSummary{}, err
	}
	descriptor := connector.Descriptor()
	summary = ConnectorSummary{
		Descriptor: descriptor,
		Status:     ConnectorStatusNotConnected,
	}

	tenantID = strings.TrimSpace(tenantID)
	if tenantID != "" && s.connectionStore != nil {
		connections, findErr := s.connectionStore.FindByTenant(ctx, tenantID, descriptor.ID)
		if findErr != nil {
			err = s.mapError(findErr)
			return ConnectorSummary{}, err
		}
		if connection, ok := pickDisplayConnections(connections)[descriptor.ID]; ok {
			summary.Status = string(connection.Status)
			summary.ConnectionID = connection.ID
		}
	}
	return summary, nil
}

func (s *Service) ListConnections(ctx context.Context, tenantID, connectorID string) (connections []Connection, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":    tenantID,
		"connector_id": connectorID,
	}
	defer func() {
		fields["count"] = len(connections)
		s.observeOperation(ctx, startedAt, "list_connections", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:    tenantID,
			Action:      "connection.list",
			ConnectorID: connectorID,
			TargetType:  "connection",
		}, err)
	}()

	if s == nil || s.connectionStore == nil {
		err = s.mapError(fmt.Errorf("core: connection store is not configured"))
		return nil, err
	}
	if strings.TrimSpace(tenantID) == "" {
		err = s.badInput("tenant id is required")
		return nil, err
	}

	connections, err = s.connectionStore.FindByTenant(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(connectorID))
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	for i := range connections {
		connections[i].Settings = s.maskConnectionSettings(connections[i])
	}
	return connections, nil
}

func (s *Service) ValidateConfig(ctx context.Context, req ValidateConfigRequest) (result ValidationResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":    req.TenantID,
		"connector_id": req.ConnectorID,
	}
	defer func() {
		fields["valid"] = result.OK
		s.observeOperation(ctx, startedAt, "validate_config", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:    req.TenantID,
			Action:      "config.validate",
			ConnectorID: req.ConnectorID,
			TargetType:  "connector",
			TargetID:    req.ConnectorID,
		}, err)
	}()

	connector, err := s.resolveConnector(req.ConnectorID)
	if err != nil {
		return ValidationResult{}, err
	}
	descriptor := connector.Descriptor()

	if missing := missingRequiredSettings(descriptor, req.Settings); len(missing) > 0 {
		result = ValidationResult{
			OK:     false,
			Reason: "missing required settings: " + strings.Join(missing, ", "),
		}
		return result, nil
	}

	cfg := ConnectorConfig{
		TenantID: req.TenantID,
		Settings: req.Settings,
	}
	if key := strings.TrimSpace(req.APIKey); key != "" {
		cfg.Credential = ActiveCredential{
			TokenType:   string(AuthMethodAPIKey),
			AccessToken: key,
		}
	}

	if err = s.beforeProviderCall(ctx, descriptor.ID, req.TenantID, "validate"); err != nil {
		return ValidationResult{}, err
	}
	callCtx, cancel := providerContext(ctx, s.callTimeout())
	defer cancel()
	result, err = connector.Validate(callCtx, cfg)
	if err != nil {
		err = s.mapError(err)
		return ValidationResult{}, err
	}
	return result, nil
}

func (s *Service) Probe(ctx context.Context, req ProbeRequest) (result ProbeResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connector_id":  req.ConnectorID,
		"connection_id": req.ConnectionID,
	}
	connectorID := strings.TrimSpace(req.ConnectorID)
	defer func() {
		fields["reachable"] = result.Reachable
		s.observeOperation(ctx, startedAt, "probe", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "connection.probe",
			ConnectorID:  connectorID,
			ConnectionID: req.ConnectionID,
			TargetType:   "connection",
			TargetID:     req.ConnectionID,
		}, err)
	}()

	var connector Connector
	var cfg ConnectorConfig

	if strings.TrimSpace(req.ConnectionID) != "" {
		connection, getErr := s.getConnection(ctx, req.TenantID, req.ConnectionID)
		if getErr != nil {
			err = getErr
			return ProbeResult{}, err
		}
		if err = s.requireUsableConnection(connection, true); err != nil {
			return ProbeResult{}, err
		}
		connector, err = s.resolveConnector(connection.ConnectorID)
		if err != nil {
			return ProbeResult{}, err
		}
		credential, credErr := s.activeCredential(ctx, connection)
		if credErr != nil {
			err = credErr
			return ProbeResult{}, err
		}
		connectorID = connection.ConnectorID
		fields["connector_id"] = connection.ConnectorID
		cfg = ConnectorConfig{
			TenantID:     connection.TenantID,
			ConnectionID: connection.ID,
			Settings:     mergeSettings(connection.Settings, req.Settings),
			Credential:   credential,
		}
	} else {
		if connectorID == "" {
			err = s.badInput("connector id or connection id is required")
			return ProbeResult{}, err
		}
		connector, err = s.resolveConnector(connectorID)
		if err != nil {
			return ProbeResult{}, err
		}
		cfg = ConnectorConfig{
			TenantID: req.TenantID,
			Settings: req.Settings,
		}
	}

	if err = s.requireCapability(connector, CapabilityProbe); err != nil {
		return ProbeResult{}, err
	}
	if err = s.beforeProviderCall(ctx, connectorID, req.TenantID, "probe"); err != nil {
		return ProbeResult{}, err
	}

	result, err = s.probeOnce(ctx, connector, cfg)
	if err != nil && s.shouldRetryProviderCall(ctx, err) {
		result, err = s.probeOnce(ctx, connector, cfg)
	}
	if err != nil {
		err = s.mapError(err)
		return ProbeResult{}, err
	}
	return result, nil
}

func (s *Service) probeOnce(ctx context.Context, connector Connector, cfg ConnectorConfig) (ProbeResult, error) {
	callCtx, cancel := providerContext(ctx, s.probeTimeout())
	defer cancel()
	return connector.Probe(callCtx, cfg)
}

// maskConnectionSettings hides secret-marked settings values before a
// connection is echoed back to a caller.
func (s *Service) maskConnectionSettings(connection Connection) map[string]any {
	if len(connection.Settings) == 0 {
		return connection.Settings
	}
	var configFields []ConfigField
	if s != nil && s.registry != nil {
		if connector, ok := s.registry.Get(connection.ConnectorID); ok {
			configFields = connector.Descriptor().ConfigFields
		}
	}
	return MaskSettings(connection.Settings, configFields)
}

func missingRequiredSettings(descriptor ConnectorDescriptor, settings map[string]any) []string {
	var missing []string
	for _, field := range descriptor.ConfigFields {
		if !field.Required {
			continue
		}
		value, ok := settings[field.Name]
		if !ok || value == nil {
			missing = append(missing, field.Name)
			continue
		}
		if text, isText := value.(string); isText && strings.TrimSpace(text) == "" {
			missing = append(missing, field.Name)
		}
	}
	return missing
}

// pickDisplayConnections reduces a tenant's connections to one per
// connector for catalog decoration: a connected one wins, otherwise the
// most recently updated.
func pickDisplayConnections(connections []Connection) map[string]Connection {
	selected := make(map[string]Connection, len(connections))
	for _, connection := range connections {
		current, exists := selected[connection.ConnectorID]
		if !exists || connectionOutranks(connection, current) {
			selected[connection.ConnectorID] = connection
		}
	}
	return selected
}

func connectionOutranks(candidate, current Connection) bool {
	candidateRank := connectionStatusRank(candidate.Status)
	currentRank := connectionStatusRank(current.Status)
	if candidateRank != currentRank {
		return candidateRank > currentRank
	}
	return candidate.UpdatedAt.After(current.UpdatedAt)
}

func connectionStatusRank(status ConnectionStatus) int {
	switch status {
	case ConnectionStatusConnected:
		return 3
	case ConnectionStatusPending:
		return 2
	case ConnectionStatusInvalid:
		return 1
	default:
		return 0
	}
}

func mergeSettings(base, overlay map[string]any) map[string]any {
	if len(overlay) == 0 {
		return copyAnyMap(base)
	}
	merged := copyAnyMap(base)
	if merged == nil {
		merged = make(map[string]any, len(overlay))
	}
	for key, value := range overlay {
		merged[key] = value
	}
	return merged
}
