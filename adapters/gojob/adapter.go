package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-connectors/adapters/gologger"
	"github.com/goliatone/go-connectors/core"
)

// ScriptConnectorJob is the script identifier workers register for
// connector job execution messages.
const ScriptConnectorJob = "connectors.job.execute"

// DefaultRetryPolicy bounds redelivery for connector jobs: a handful of
// attempts with capped backoff, dead letter at the end.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     5,
	MaxDelay:        5 * time.Minute,
	DeadLetterOnMax: true,
}

// RetryPolicy defines queue retry bounds so a poisoned job cannot requeue
// forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps a nack to the policy: delays are bounded, dead
// letter wins over requeue, and the max attempt stops requeueing for good.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a connector execution message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the connector contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

func FromNackOptions(opts queue.NackOptions) core.JobNackOptions {
	return core.JobNackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

// EnqueuerAdapter satisfies core.JobEnqueuer on top of a go-job queue, so
// Service.ExecuteJob can dispatch without knowing the queue implementation.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

// NackForAttempt applies the retry policy for a known attempt count before
// handing the nack to the queue.
func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	return d.delivery.Nack(ctx, ToNackOptions(normalized))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// Processor consumes one execution message. Service.ProcessJob satisfies
// this signature.
type Processor func(ctx context.Context, msg *core.JobExecutionMessage) error

// ConsumeOne pulls a single delivery and settles it: ack when the
// processor succeeds, requeue-nack with the delivery's policy when it
// fails. The processor error is returned either way so callers can log it.
func ConsumeOne(ctx context.Context, dequeuer core.JobDequeuer, process Processor) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	if process == nil {
		return fmt.Errorf("gojob: processor is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if processErr := process(ctx, delivery.Message()); processErr != nil {
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Reason:  processErr.Error(),
		}); nackErr != nil {
			return fmt.Errorf("gojob: nack after processing failure: %w", nackErr)
		}
		return processErr
	}
	return delivery.Ack(ctx)
}

// WorkerHookAdapter exposes a core.JobWorkerHook as a go-job worker hook
// so job lifecycle events reach connector-side observers.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

// LoggingHook logs job lifecycle events through the service's glog sink,
// stamping each line with the job's identifiers. A hook without a logger
// stays silent.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(name string, provider glog.LoggerProvider, logger glog.Logger) *LoggingHook {
	_, resolved := gologger.Resolve(name, provider, logger)
	return &LoggingHook{logger: resolved}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	if logger := h.scoped(ctx, event); logger != nil {
		logger.Info("connector job started", "attempt", event.Attempt)
	}
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	if logger := h.scoped(ctx, event); logger != nil {
		logger.Info("connector job completed", "attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds())
	}
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	if logger := h.scoped(ctx, event); logger != nil {
		logger.Error("connector job failed", "attempt", event.Attempt, "error", event.Err)
	}
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	if logger := h.scoped(ctx, event); logger != nil {
		logger.Warn("connector job retry scheduled", "attempt", event.Attempt, "delay_ms", event.Delay.Milliseconds(), "error", event.Err)
	}
}

func (h *LoggingHook) scoped(ctx context.Context, event worker.Event) glog.Logger {
	if h == nil || h.logger == nil {
		return nil
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	logger := gologger.WithJobFields(h.logger, FromExecutionMessage(message))
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	return logger
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
	_ worker.Hook      = (*LoggingHook)(nil)
)
