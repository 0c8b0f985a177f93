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

// SyncStateStore keeps one cursor row per (tenant, connection). A missing
// row surfaces as core.ErrSyncStateNotFound; an existing row with an empty
// cursor is a stored value, not a miss.
type SyncStateStore struct {
	db   *bun.DB
	repo repository.Repository[*syncStateRecord]
}

func NewSyncStateStore(db *bun.DB) (*SyncStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncStateRecord](db, syncStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync state repository wiring: %w", err)
		}
	}
	return &SyncStateStore{db: db, repo: repo}, nil
}

func (s *SyncStateStore) Get(ctx context.Context, tenantID, connectionID string) (core.SyncState, error) {
	if s == nil || s.db == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: sync state store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	connectionID = strings.TrimSpace(connectionID)
	if tenantID == "" || connectionID == "" {
		return core.SyncState{}, fmt.Errorf("sqlstore: tenant id and connection id are required")
	}

	record := &syncStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.connection_id = ?", connectionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.SyncState{}, core.ErrSyncStateNotFound
		}
		return core.SyncState{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncStateStore) Put(ctx context.Context, in core.PutSyncStateInput) (core.SyncState, error) {
	if s == nil || s.db == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: sync state store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.ConnectionID = strings.TrimSpace(in.ConnectionID)
	if in.TenantID == "" || in.ConnectionID == "" {
		return core.SyncState{}, fmt.Errorf("sqlstore: tenant id and connection id are required")
	}
	now := time.Now().UTC()

	var out core.SyncState
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSyncStateTx(ctx, tx, in.TenantID, in.ConnectionID)
		if err != nil {
			return err
		}
		if record == nil {
			record = newSyncStateRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findSyncStateTx(ctx, tx, in.TenantID, in.ConnectionID)
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

		record.Cursor = in.Cursor
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.SyncState{}, err
	}
	return out, nil
}

func findSyncStateTx(
	ctx context.Context,
	tx bun.Tx,
	tenantID string,
	connectionID string,
) (*syncStateRecord, error) {
	record := &syncStateRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.connection_id = ?", connectionID).
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
