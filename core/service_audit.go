package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// systemActor labels audit entries produced without an explicit actor on
// the context.
const systemActor = "system"

// recordAudit appends one trail entry for a finished operation. Audit
// failures are logged and swallowed; they never fail the operation that
// produced them.
func (s *Service) recordAudit(ctx context.Context, entry AuditEntry, opErr error) {
	if s == nil || s.auditSink == nil {
		return
	}
	if strings.TrimSpace(entry.Actor) == "" {
		entry.Actor = ActorFromContext(ctx)
	}
	if strings.TrimSpace(entry.Actor) == "" {
		entry.Actor = systemActor
	}
	if strings.TrimSpace(entry.CorrelationID) == "" {
		entry.CorrelationID = CorrelationIDFromContext(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Outcome = AuditOutcomeOK
	if opErr != nil {
		entry.Outcome = AuditOutcomeError
		entry.Error = opErr.Error()
	}
	if len(entry.Metadata) > 0 {
		entry.Metadata = RedactSensitiveMap(entry.Metadata)
	}
	if recordErr := s.auditSink.Record(ctx, entry); recordErr != nil {
		s.logWarn(ctx, "audit record failed", map[string]any{
			"action": entry.Action,
			"error":  recordErr.Error(),
		})
	}
}

func (s *Service) ListAudit(ctx context.Context, filter AuditFilter) (page AuditPage, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     filter.TenantID,
		"connector_id":  filter.ConnectorID,
		"connection_id": filter.ConnectionID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_audit", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     filter.TenantID,
			Action:       "audit.list",
			ConnectorID:  filter.ConnectorID,
			ConnectionID: filter.ConnectionID,
			TargetType:   "audit",
		}, err)
	}()

	if s == nil || s.auditSink == nil {
		err = s.mapError(fmt.Errorf("core: audit sink is not configured"))
		return AuditPage{}, err
	}
	if strings.TrimSpace(filter.TenantID) == "" {
		err = s.badInput("tenant id is required")
		return AuditPage{}, err
	}
	filter = normalizeAuditFilter(filter, s.config.Pagination.DefaultLimit)

	page, err = s.auditSink.List(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return AuditPage{}, err
	}
	return page, nil
}

func normalizeAuditFilter(filter AuditFilter, fallbackPerPage int) AuditFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if fallbackPerPage < PageLimitMin || fallbackPerPage > PageLimitMax {
		fallbackPerPage = PageLimitDefault
	}
	if filter.PerPage == 0 {
		filter.PerPage = fallbackPerPage
	}
	if filter.PerPage < PageLimitMin {
		filter.PerPage = PageLimitMin
	}
	if filter.PerPage > PageLimitMax {
		filter.PerPage = PageLimitMax
	}
	filter.TenantID = strings.TrimSpace(filter.TenantID)
	filter.ConnectorID = strings.TrimSpace(filter.ConnectorID)
	filter.ConnectionID = strings.TrimSpace(filter.ConnectionID)
	filter.Action = strings.TrimSpace(filter.Action)
	return filter
}
