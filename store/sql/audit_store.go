package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-connectors/core"
)

// AuditStore is the durable audit trail. Record never rejects an entry for
// cosmetic reasons; missing actor and outcome get defaults so a failing
// operation can still leave its trace. Metadata is redacted before it ever
// reaches a row.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditEntryRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditEntryRecord](db, auditEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

func (s *AuditStore) Record(ctx context.Context, entry core.AuditEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	if strings.TrimSpace(entry.Action) == "" {
		return fmt.Errorf("sqlstore: audit action is required")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if strings.TrimSpace(entry.Actor) == "" {
		entry.Actor = "system"
	}
	if strings.TrimSpace(string(entry.Outcome)) == "" {
		entry.Outcome = core.AuditOutcomeOK
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	} else {
		entry.CreatedAt = entry.CreatedAt.UTC()
	}

	_, err := s.repo.Create(ctx, newAuditEntryRecord(entry))
	return err
}

func (s *AuditStore) List(ctx context.Context, filter core.AuditFilter) (core.AuditPage, error) {
	if s == nil || s.repo == nil {
		return core.AuditPage{}, fmt.Errorf("sqlstore: audit store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if connectorID := strings.TrimSpace(filter.ConnectorID); connectorID != "" {
		selectors = append(selectors, repository.SelectBy("connector_id", "=", connectorID))
	}
	if connectionID := strings.TrimSpace(filter.ConnectionID); connectionID != "" {
		selectors = append(selectors, repository.SelectBy("connection_id", "=", connectionID))
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if outcome := strings.TrimSpace(string(filter.Outcome)); outcome != "" {
		selectors = append(selectors, repository.SelectBy("outcome", "=", outcome))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.AuditPage{}, err
	}
	entries := make([]core.AuditEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.toDomain())
	}
	nextCursor := ""
	if offset+len(entries) < total {
		nextCursor = strconv.Itoa(offset + len(entries))
	}
	return core.AuditPage{
		Entries:    entries,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		NextCursor: nextCursor,
	}, nil
}
