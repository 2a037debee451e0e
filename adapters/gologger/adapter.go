package gologger

import (
	"context"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-mastodon/adapters/gojob"
)

const DefaultLoggerName = "mastodon"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if name == "" {
		name = DefaultLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves glog logger/provider then returns equivalent go-job adapters.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// JobLogHook logs marker job lifecycle events.
type JobLogHook struct {
	logger glog.Logger
}

func NewJobLogHook(logger glog.Logger) *JobLogHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &JobLogHook{logger: logger}
}

func (h *JobLogHook) OnStart(ctx context.Context, event gojob.JobEvent) {
	h.log(ctx, "debug", "job started", event)
}

func (h *JobLogHook) OnSuccess(ctx context.Context, event gojob.JobEvent) {
	h.log(ctx, "info", "job completed", event)
}

func (h *JobLogHook) OnFailure(ctx context.Context, event gojob.JobEvent) {
	h.log(ctx, "error", "job failed", event)
}

func (h *JobLogHook) OnRetry(ctx context.Context, event gojob.JobEvent) {
	h.log(ctx, "warn", "job retry scheduled", event)
}

func (h *JobLogHook) log(ctx context.Context, level string, message string, event gojob.JobEvent) {
	if h == nil || h.logger == nil {
		return
	}
	logger := h.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"job_id", event.JobID,
		"connection_id", event.ConnectionID,
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	switch level {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

var _ gojob.WorkerHook = (*JobLogHook)(nil)
