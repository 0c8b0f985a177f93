package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-connectors/core"
)

// HandshakeStore keeps pending OAuth handshakes in SQL so that callbacks
// can land on any instance. Consume claims the row with a conditional
// update; the consumed_at tombstone stays behind so a replayed state maps
// to ErrHandshakeConsumed instead of ErrHandshakeNotFound.
type HandshakeStore struct {
	db *bun.DB
}

func NewHandshakeStore(db *bun.DB) (*HandshakeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &HandshakeStore{db: db}, nil
}

func (s *HandshakeStore) Save(ctx context.Context, record core.HandshakeRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: handshake store is not configured")
	}
	if strings.TrimSpace(record.State) == "" {
		return fmt.Errorf("sqlstore: handshake state is required")
	}
	if strings.TrimSpace(record.TenantID) == "" {
		return fmt.Errorf("sqlstore: handshake tenant id is required")
	}
	if strings.TrimSpace(record.ConnectorID) == "" {
		return fmt.Errorf("sqlstore: handshake connector id is required")
	}
	if record.ExpiresAt.IsZero() {
		return fmt.Errorf("sqlstore: handshake expiry is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	row := newHandshakeRecord(record)
	row.ID = uuid.NewString()
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlstore: handshake state already exists")
		}
		return err
	}
	return nil
}

func (s *HandshakeStore) Consume(ctx context.Context, state string) (core.HandshakeRecord, error) {
	if s == nil || s.db == nil {
		return core.HandshakeRecord{}, fmt.Errorf("sqlstore: handshake store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.HandshakeRecord{}, fmt.Errorf("sqlstore: handshake state is required")
	}
	now := time.Now().UTC()

	var out core.HandshakeRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*handshakeRecord)(nil)).
			Set("consumed_at = ?", now).
			Where("state = ?", state).
			Where("consumed_at IS NULL").
			Exec(ctx)
		if err != nil {
			return err
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return err
		}

		record := &handshakeRecord{}
		scanErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx)
		if scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return core.ErrHandshakeNotFound
			}
			return scanErr
		}
		if claimed == 0 {
			return core.ErrHandshakeConsumed
		}
		if now.After(record.ExpiresAt) {
			return core.ErrHandshakeExpired
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.HandshakeRecord{}, err
	}
	return out, nil
}

// PruneExpired drops rows whose expiry is older than the retention window.
// Tombstones need to outlive the handshake TTL so replay detection keeps
// working; callers pass the window they are comfortable with.
func (s *HandshakeStore) PruneExpired(ctx context.Context, retention time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: handshake store is not configured")
	}
	if retention < 0 {
		retention = 0
	}
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.NewDelete().
		Model((*handshakeRecord)(nil)).
		Where("expires_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}
