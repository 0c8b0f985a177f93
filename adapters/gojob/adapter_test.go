package gojob

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-connectors/core"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          "job_01HZX4R8",
		ScriptPath:     ScriptConnectorJob,
		Parameters:     map[string]any{"tenant_id": "t1", "kind": "import"},
		IdempotencyKey: "job_01HZX4R8",
		DedupPolicy:    "drop",
	}

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	roundTrip := FromExecutionMessage(converted)
	if roundTrip.JobID != original.JobID {
		t.Fatalf("expected job id %q, got %q", original.JobID, roundTrip.JobID)
	}
	if roundTrip.ScriptPath != ScriptConnectorJob {
		t.Fatalf("expected script path %q, got %q", ScriptConnectorJob, roundTrip.ScriptPath)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}
	if roundTrip.DedupPolicy != original.DedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", original.DedupPolicy, roundTrip.DedupPolicy)
	}
	if roundTrip.Parameters["tenant_id"] != "t1" {
		t.Fatalf("expected parameters to survive mapping")
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	enqueueAdapter := NewEnqueuerAdapter(enqueuer)

	msg := &core.JobExecutionMessage{
		JobID:          "job_sync_7",
		Parameters:     map[string]any{"tenant_id": "t1", "kind": "sync"},
		IdempotencyKey: "job_sync_7",
	}
	if err := enqueueAdapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != "job_sync_7" {
		t.Fatalf("expected mapped go-job message")
	}

	dequeuer := &stubQueueDequeuer{delivery: &stubQueueDelivery{msg: enqueuer.last}}
	dequeueAdapter := NewDequeuerAdapter(dequeuer, DefaultRetryPolicy)
	delivery, err := dequeueAdapter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got := delivery.Message()
	if got == nil || got.JobID != "job_sync_7" {
		t.Fatalf("expected mapped connector message")
	}
	if got.Parameters["kind"] != "sync" {
		t.Fatalf("expected routing parameters to survive, got %#v", got.Parameters)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.delivery.(*stubQueueDelivery).acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	ctx := context.Background()
	rawDelivery := &stubQueueDelivery{
		msg: &job.ExecutionMessage{JobID: "job_import_3"},
	}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	})

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   30 * time.Second,
		Requeue: true,
		Reason:  "provider timeout",
	}, 1); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if rawDelivery.nackOpts.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", rawDelivery.nackOpts.Delay)
	}
	if !rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected message to be requeued before max attempts")
	}

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   time.Second,
		Requeue: true,
		Reason:  "still failing",
	}, 3); err != nil {
		t.Fatalf("nack max attempt: %v", err)
	}
	if rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected no requeue once max attempts is reached")
	}
	if !rawDelivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on max attempts")
	}
}

func TestConsumeOneSettlesDelivery(t *testing.T) {
	ctx := context.Background()
	raw := &stubQueueDelivery{
		msg: &job.ExecutionMessage{
			JobID:      "job_probe_9",
			Parameters: map[string]any{"tenant_id": "t1", "kind": "probe"},
		},
	}
	dequeuer := NewDequeuerAdapter(&stubQueueDequeuer{delivery: raw}, DefaultRetryPolicy)

	var processed *core.JobExecutionMessage
	err := ConsumeOne(ctx, dequeuer, func(_ context.Context, msg *core.JobExecutionMessage) error {
		processed = msg
		return nil
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if processed == nil || processed.JobID != "job_probe_9" {
		t.Fatalf("expected processor to see the dequeued message")
	}
	if !raw.acked {
		t.Fatalf("expected ack after successful processing")
	}

	failing := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "job_probe_10"}}
	failDequeuer := NewDequeuerAdapter(&stubQueueDequeuer{delivery: failing}, DefaultRetryPolicy)
	cause := errors.New("connection revoked")
	err = ConsumeOne(ctx, failDequeuer, func(context.Context, *core.JobExecutionMessage) error {
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected processor error surfaced, got %v", err)
	}
	if failing.acked {
		t.Fatalf("expected no ack on failure")
	}
	if !failing.nackOpts.Requeue {
		t.Fatalf("expected requeue nack on failure")
	}
	if failing.nackOpts.Reason != "connection revoked" {
		t.Fatalf("expected nack reason, got %q", failing.nackOpts.Reason)
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	now := time.Now().UTC().Add(-time.Second)
	coreHook := &capturingHook{}
	adapter := NewWorkerHookAdapter(coreHook)

	evt := worker.Event{
		Message: &job.ExecutionMessage{
			JobID:          "job_sync_11",
			IdempotencyKey: "job_sync_11",
		},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: now,
		Duration:  250 * time.Millisecond,
	}

	adapter.OnRetry(context.Background(), evt)
	if coreHook.last.Message == nil {
		t.Fatalf("expected worker message mapping")
	}
	if coreHook.last.Message.JobID != "job_sync_11" {
		t.Fatalf("expected job id mapping, got %q", coreHook.last.Message.JobID)
	}
	if coreHook.last.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", coreHook.last.Attempt)
	}
	if coreHook.last.Delay != 5*time.Second {
		t.Fatalf("expected delay 5s, got %s", coreHook.last.Delay)
	}
	if coreHook.last.Duration != 250*time.Millisecond {
		t.Fatalf("expected duration mapping")
	}
	if coreHook.last.StartedAt.IsZero() {
		t.Fatalf("expected started_at mapping")
	}
	if coreHook.last.Err == nil || coreHook.last.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}
}

func TestLoggingHookLogsLifecycle(t *testing.T) {
	sink := &lifecycleLogger{}
	hook := NewLoggingHook("connectors.worker", nil, sink)

	msg := &job.ExecutionMessage{JobID: "job_12", ScriptPath: ScriptConnectorJob}
	cause := errors.New("provider unavailable")

	hook.OnStart(context.Background(), worker.Event{Message: msg, Attempt: 1})
	hook.OnRetry(context.Background(), worker.Event{Message: msg, Attempt: 1, Delay: 2 * time.Second, Err: cause})
	hook.OnFailure(context.Background(), worker.Event{Message: msg, Attempt: 2, Err: cause})
	hook.OnSuccess(context.Background(), worker.Event{Message: msg, Attempt: 3, Duration: 125 * time.Millisecond})

	want := []string{
		"info:connector job started",
		"warn:connector job retry scheduled",
		"error:connector job failed",
		"info:connector job completed",
	}
	if !reflect.DeepEqual(sink.lines, want) {
		t.Fatalf("expected lifecycle log lines %v, got %v", want, sink.lines)
	}
	if sink.lastFields["job_id"] != "job_12" {
		t.Fatalf("expected job_id stamped on lifecycle logs, got %#v", sink.lastFields)
	}
}

func TestLoggingHookWithoutLoggerStaysSilent(t *testing.T) {
	var hook *LoggingHook
	// Must not panic.
	hook.OnStart(context.Background(), worker.Event{})
	(&LoggingHook{}).OnFailure(context.Background(), worker.Event{Err: errors.New("boom")})
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type lifecycleLogger struct {
	lines      []string
	lastFields map[string]any
}

func (l *lifecycleLogger) record(level, msg string) {
	l.lines = append(l.lines, level+":"+msg)
}

func (l *lifecycleLogger) Trace(msg string, _ ...any) { l.record("trace", msg) }
func (l *lifecycleLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *lifecycleLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *lifecycleLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *lifecycleLogger) Error(msg string, _ ...any) { l.record("error", msg) }
func (l *lifecycleLogger) Fatal(msg string, _ ...any) { l.record("fatal", msg) }

func (l *lifecycleLogger) WithContext(context.Context) glog.Logger { return l }

func (l *lifecycleLogger) WithFields(fields map[string]any) glog.Logger {
	l.lastFields = fields
	return l
}

var (
	_ glog.Logger       = (*lifecycleLogger)(nil)
	_ glog.FieldsLogger = (*lifecycleLogger)(nil)
)

type capturingHook struct {
	last core.JobWorkerEvent
}

func (h *capturingHook) OnStart(context.Context, core.JobWorkerEvent)   {}
func (h *capturingHook) OnSuccess(context.Context, core.JobWorkerEvent) {}
func (h *capturingHook) OnFailure(context.Context, core.JobWorkerEvent) {}
func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.last = event
}
