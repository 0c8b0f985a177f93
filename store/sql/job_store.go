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

// JobStore persists background jobs. Get is tenant scoped; UpdateStatus and
// SetResult address jobs by id alone because workers hold the id from the
// queue message and already passed the tenant check when the job was read.
type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*jobRecord]
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobStore{db: db, repo: repo}, nil
}

func (s *JobStore) Create(ctx context.Context, in core.CreateJobInput) (core.Job, error) {
	if s == nil || s.repo == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return core.Job{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if strings.TrimSpace(in.ConnectorID) == "" {
		return core.Job{}, fmt.Errorf("sqlstore: connector id is required")
	}
	if strings.TrimSpace(in.ConnectionID) == "" {
		return core.Job{}, fmt.Errorf("sqlstore: connection id is required")
	}
	if _, err := core.ParseJobKind(string(in.Kind)); err != nil {
		return core.Job{}, err
	}

	record := newJobRecord(in, time.Now().UTC())
	record.ID = uuid.NewString()
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Job{}, err
	}
	return created.toDomain(), nil
}

func (s *JobStore) Get(ctx context.Context, tenantID, jobID string) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	jobID = strings.TrimSpace(jobID)
	if tenantID == "" || jobID == "" {
		return core.Job{}, fmt.Errorf("sqlstore: tenant id and job id are required")
	}

	record := &jobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.id = ?", jobID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Job{}, core.ErrJobNotFound
		}
		return core.Job{}, err
	}
	return record.toDomain(), nil
}

func (s *JobStore) UpdateStatus(
	ctx context.Context,
	jobID string,
	status core.JobStatus,
	progress int,
	reason string,
) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}

	var out core.Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}

		job := record.toDomain()
		if transitionErr := job.TransitionTo(status, reason, time.Now().UTC()); transitionErr != nil {
			return transitionErr
		}
		if progress >= 0 && job.Status != core.JobStatusCompleted {
			job.Progress = clampProgress(progress)
		}

		record.Status = string(job.Status)
		record.Progress = job.Progress
		record.LastError = job.LastError
		record.UpdatedAt = job.UpdatedAt
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = job
		return nil
	})
	if err != nil {
		return core.Job{}, err
	}
	return out, nil
}

func (s *JobStore) SetResult(ctx context.Context, jobID string, result map[string]any) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}

	var out core.Job
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		record.Result = copyAnyMap(result)
		record.UpdatedAt = time.Now().UTC()
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Job{}, err
	}
	return out, nil
}

func findJobTx(ctx context.Context, tx bun.Tx, jobID string) (*jobRecord, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("sqlstore: job id is required")
	}
	record := &jobRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", jobID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrJobNotFound
		}
		return nil, err
	}
	return record, nil
}

func clampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
