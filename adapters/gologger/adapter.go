package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-connectors/core"
)

// Resolve picks a logger with deterministic precedence provider > logger >
// nop, matching how the connector service resolves its own logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider onto the go-job logger provider
// contract so queue workers log through the same sink as the service.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair and returns the go-job equivalents
// alongside, for wiring a job worker in one call.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// WithJobFields narrows a logger to one job's identifiers when the sink
// supports fields. Loggers without field support are returned unchanged, so
// callers can chain this unconditionally.
func WithJobFields(logger glog.Logger, msg *core.JobExecutionMessage) glog.Logger {
	if logger == nil || msg == nil {
		return logger
	}
	fieldsLogger, ok := logger.(glog.FieldsLogger)
	if !ok {
		return logger
	}
	fields := map[string]any{}
	if id := strings.TrimSpace(msg.JobID); id != "" {
		fields["job_id"] = id
	}
	if script := strings.TrimSpace(msg.ScriptPath); script != "" {
		fields["script"] = script
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		fields["idempotency_key"] = key
	}
	if len(fields) == 0 {
		return logger
	}
	return fieldsLogger.WithFields(fields)
}
