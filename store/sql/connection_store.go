package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-connectors/core"
)

// ConnectionStore persists connections keyed by (tenant, connector, name).
// Get and UpdateStatus filter by tenant, so a connection from another tenant
// is indistinguishable from a missing one.
type ConnectionStore struct {
	db   *bun.DB
	repo repository.Repository[*connectionRecord]
}

func NewConnectionStore(db *bun.DB) (*ConnectionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*connectionRecord](db, connectionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid connection repository wiring: %w", err)
		}
	}
	return &ConnectionStore{db: db, repo: repo}, nil
}

func (s *ConnectionStore) Upsert(ctx context.Context, in core.UpsertConnectionInput) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.ConnectorID = strings.TrimSpace(in.ConnectorID)
	in.Name = strings.TrimSpace(in.Name)
	if in.TenantID == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if in.ConnectorID == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: connector id is required")
	}
	if in.Name == "" {
		in.Name = "default"
	}
	if strings.TrimSpace(string(in.Status)) == "" {
		in.Status = core.ConnectionStatusPending
	}
	now := time.Now().UTC()

	var out core.Connection
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findConnectionTx(ctx, tx, in.TenantID, in.ConnectorID, in.Name)
		if err != nil {
			return err
		}
		if record == nil {
			record = newConnectionRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findConnectionTx(ctx, tx, in.TenantID, in.ConnectorID, in.Name)
				if err != nil {
					return err
				}
				if record == nil {
					return insertErr
				}
			} else {
				out = record.toDomain()
				return nil
			}
		}

		record.AuthMethod = string(in.AuthMethod)
		record.Status = string(in.Status)
		if in.Settings != nil {
			record.Settings = copyAnyMap(in.Settings)
		}
		if trimmed := strings.TrimSpace(in.ExternalAccountID); trimmed != "" {
			record.ExternalAccountID = trimmed
		}
		record.LastError = ""
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Connection{}, err
	}
	return out, nil
}

func (s *ConnectionStore) Get(ctx context.Context, tenantID, connectionID string) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	connectionID = strings.TrimSpace(connectionID)
	if tenantID == "" || connectionID == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: tenant id and connection id are required")
	}

	record := &connectionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.id = ?", connectionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Connection{}, core.ErrConnectionNotFound
		}
		return core.Connection{}, err
	}
	return record.toDomain(), nil
}

func (s *ConnectionStore) FindByTenant(ctx context.Context, tenantID, connectorID string) ([]core.Connection, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: connection store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("sqlstore: tenant id is required")
	}

	selectors := []repository.SelectCriteria{
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.OrderBy("created_at ASC"),
	}
	if connectorID = strings.TrimSpace(connectorID); connectorID != "" {
		selectors = append(selectors, repository.SelectBy("connector_id", "=", connectorID))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}

	out := make([]core.Connection, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ConnectionStore) UpdateStatus(
	ctx context.Context,
	tenantID string,
	connectionID string,
	status core.ConnectionStatus,
	reason string,
) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}

	var out core.Connection
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &connectionRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
			Where("?TableAlias.id = ?", strings.TrimSpace(connectionID)).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return core.ErrConnectionNotFound
			}
			return err
		}

		connection := record.toDomain()
		if transitionErr := connection.TransitionTo(status, reason, time.Now().UTC()); transitionErr != nil {
			return transitionErr
		}
		record.Status = string(connection.Status)
		record.LastError = connection.LastError
		record.UpdatedAt = connection.UpdatedAt
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = connection
		return nil
	})
	if err != nil {
		return core.Connection{}, err
	}
	return out, nil
}

func findConnectionTx(
	ctx context.Context,
	tx bun.Tx,
	tenantID string,
	connectorID string,
	name string,
) (*connectionRecord, error) {
	record := &connectionRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.connector_id = ?", connectorID).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
