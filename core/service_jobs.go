package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExecuteJob validates the request, persists a queued job row, and hands
// it to the enqueuer. The row is the source of truth; the queue message
// carries only the job id and the tenant routing key, so a redelivered
// message always re-reads current state.
func (s *Service) ExecuteJob(ctx context.Context, req ExecuteJobRequest) (job Job, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
		"kind":          string(req.Kind),
	}
	defer func() {
		if job.ID != "" {
			fields["job_id"] = job.ID
		}
		s.observeOperation(ctx, startedAt, "execute_job", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "job.execute",
			ConnectorID:  job.ConnectorID,
			ConnectionID: req.ConnectionID,
			TargetType:   "job",
			TargetID:     job.ID,
		}, err)
	}()

	if s.jobStore == nil {
		err = s.mapError(fmt.Errorf("core: job store is not configured"))
		return Job{}, err
	}
	kind, err := ParseJobKind(string(req.Kind))
	if err != nil {
		err = s.badInput(err.Error())
		return Job{}, err
	}

	connection, err := s.getConnection(ctx, req.TenantID, req.ConnectionID)
	if err != nil {
		return Job{}, err
	}
	if err = s.requireUsableConnection(connection, kind == JobKindProbe); err != nil {
		return Job{}, err
	}
	connector, err := s.resolveConnector(connection.ConnectorID)
	if err != nil {
		return Job{}, err
	}
	if err = s.requireCapability(connector, CapabilityJobs); err != nil {
		return Job{}, err
	}
	fields["connector_id"] = connection.ConnectorID

	job, err = s.jobStore.Create(ctx, CreateJobInput{
		TenantID:     connection.TenantID,
		ConnectorID:  connection.ConnectorID,
		ConnectionID: connection.ID,
		Kind:         kind,
		Parameters:   req.Parameters,
	})
	if err != nil {
		err = s.mapError(err)
		return Job{}, err
	}

	if s.jobEnqueuer == nil {
		s.logWarn(ctx, "job enqueuer is not configured; job stays queued", map[string]any{
			"job_id": job.ID,
		})
		return job, nil
	}

	message := &JobExecutionMessage{
		JobID: job.ID,
		Parameters: map[string]any{
			"tenant_id": connection.TenantID,
			"kind":      string(kind),
		},
		IdempotencyKey: job.ID,
	}
	if enqueueErr := s.jobEnqueuer.Enqueue(ctx, message); enqueueErr != nil {
		if _, failErr := s.jobStore.UpdateStatus(ctx, job.ID, JobStatusFailed, 0, "enqueue failed: "+enqueueErr.Error()); failErr != nil {
			s.logWarn(ctx, "marking job failed after enqueue error failed", map[string]any{
				"job_id": job.ID,
				"error":  failErr.Error(),
			})
		}
		err = s.mapError(enqueueErr)
		return Job{}, err
	}
	return job, nil
}

// GetJob reads one job tenant scoped.
func (s *Service) GetJob(ctx context.Context, tenantID, jobID string) (job Job, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": tenantID,
		"job_id":    jobID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_job", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:   tenantID,
			Action:     "job.get",
			TargetType: "job",
			TargetID:   jobID,
		}, err)
	}()

	if s.jobStore == nil {
		err = s.mapError(fmt.Errorf("core: job store is not configured"))
		return Job{}, err
	}
	if strings.TrimSpace(tenantID) == "" {
		err = s.badInput("tenant id is required")
		return Job{}, err
	}
	if strings.TrimSpace(jobID) == "" {
		err = s.badInput("job id is required")
		return Job{}, err
	}
	job, err = s.jobStore.Get(ctx, tenantID, jobID)
	if err != nil {
		err = s.mapError(err)
		return Job{}, err
	}
	return job, nil
}

// ProcessJob is the worker entry point for a dequeued execution message.
// It re-reads the job row, runs the connector, and records the outcome. A
// message redelivered after completion acks without re-running; a failed
// job picked up again moves back to running and retries.
func (s *Service) ProcessJob(ctx context.Context, msg *JobExecutionMessage) (err error) {
	startedAt := time.Now().UTC()
	if msg == nil {
		return s.badInput("job execution message is required")
	}
	tenantID, _ := msg.Parameters["tenant_id"].(string)
	fields := map[string]any{
		"tenant_id": tenantID,
		"job_id":    msg.JobID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "process_job", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:   tenantID,
			Action:     "job.process",
			TargetType: "job",
			TargetID:   msg.JobID,
		}, err)
	}()

	if s.jobStore == nil {
		err = s.mapError(fmt.Errorf("core: job store is not configured"))
		return err
	}
	if strings.TrimSpace(tenantID) == "" {
		err = s.badInput("job execution message is missing the tenant id")
		return err
	}
	job, err := s.jobStore.Get(ctx, tenantID, msg.JobID)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	fields["connector_id"] = job.ConnectorID
	fields["kind"] = string(job.Kind)

	if job.Status == JobStatusCompleted {
		return nil
	}

	if _, err = s.jobStore.UpdateStatus(ctx, job.ID, JobStatusRunning, job.Progress, ""); err != nil {
		err = s.mapError(err)
		return err
	}

	connection, err := s.getConnection(ctx, job.TenantID, job.ConnectionID)
	if err != nil {
		return s.failJob(ctx, job.ID, err)
	}
	if err = s.requireUsableConnection(connection, job.Kind == JobKindProbe); err != nil {
		return s.failJob(ctx, job.ID, err)
	}
	connector, err := s.resolveConnector(connection.ConnectorID)
	if err != nil {
		return s.failJob(ctx, job.ID, err)
	}
	credential, err := s.activeCredential(ctx, connection)
	if err != nil {
		return s.failJob(ctx, job.ID, err)
	}
	if err = s.beforeProviderCall(ctx, connection.ConnectorID, connection.TenantID, "jobs"); err != nil {
		return s.failJob(ctx, job.ID, err)
	}

	callCtx, cancel := providerContext(ctx, s.callTimeout())
	result, execErr := connector.Execute(callCtx, ConnectorConfig{
		TenantID:     connection.TenantID,
		ConnectionID: connection.ID,
		Settings:     connection.Settings,
		Credential:   credential,
	}, JobSpec{
		Kind:       job.Kind,
		Parameters: job.Parameters,
	})
	cancel()
	if execErr != nil {
		err = s.mapError(execErr)
		return s.failJob(ctx, job.ID, err)
	}

	if _, err = s.jobStore.SetResult(ctx, job.ID, result.Payload); err != nil {
		err = s.mapError(err)
		return s.failJob(ctx, job.ID, err)
	}
	if _, err = s.jobStore.UpdateStatus(ctx, job.ID, JobStatusCompleted, 100, ""); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// failJob flips the row to failed and passes the cause through so the
// queue layer can apply its own retry and dead-letter policy.
func (s *Service) failJob(ctx context.Context, jobID string, cause error) error {
	if _, updateErr := s.jobStore.UpdateStatus(ctx, jobID, JobStatusFailed, 0, cause.Error()); updateErr != nil {
		s.logWarn(ctx, "marking job failed failed", map[string]any{
			"job_id": jobID,
			"error":  updateErr.Error(),
		})
	}
	return cause
}
