package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type logLevel int

const (
	levelInfo logLevel = iota
	levelWarn
	levelError
)

// tagKeys are copied from the log fields onto metric tags when present.
var tagKeys = []string{"provider_id", "connection_id", "status_code"}

// observeOperation emits the <prefix>.<op>.total counter, the
// <prefix>.<op>.duration_ms histogram and one structured log line per call.
func (s *Service) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if s == nil {
		return
	}
	if operation = normalizeOperation(operation); operation == "" {
		operation = "unknown"
	}
	elapsed := time.Since(startedAt).Milliseconds()
	outcome, verb, level := "success", "succeeded", levelInfo
	if err != nil {
		outcome, verb, level = "failure", "failed", levelError
	}

	logFields := RedactSensitiveMap(fields)
	logFields["event_type"] = operation
	logFields["status"] = outcome
	logFields["duration_ms"] = elapsed
	if err != nil {
		logFields["error"] = err.Error()
		addErrorFields(logFields, err)
	}

	tags := map[string]string{"operation": operation, "status": outcome}
	for _, key := range tagKeys {
		if value, ok := logFields[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				tags[key] = text
			}
		}
	}

	if s.metricsRecorder != nil {
		name := s.metricPrefix() + "." + operation
		s.metricsRecorder.IncCounter(ctx, name+".total", 1, cloneTags(tags))
		s.metricsRecorder.ObserveHistogram(ctx, name+".duration_ms", float64(elapsed), cloneTags(tags))
	}
	s.log(ctx, level, operation+" "+verb, logFields)
}

// addErrorFields lifts the go-errors envelope into flat log fields.
func addErrorFields(fields map[string]any, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return
	}
	fields["error_category"] = rich.Category.String()
	if rich.TextCode != "" {
		fields["error_text_code"] = rich.TextCode
	}
	if rich.Code != 0 {
		fields["error_code"] = rich.Code
	}
	if len(rich.Metadata) > 0 {
		fields["error_metadata"] = RedactSensitiveMap(rich.Metadata)
	}
}

func (s *Service) metricPrefix() string {
	if s != nil {
		if name := normalizeOperation(s.config.ServiceName); name != "" {
			return name
		}
	}
	return "mastodon"
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.log(ctx, levelWarn, message, fields)
}

// log writes through WithFields when the logger supports it and always
// passes the fields as sorted key/value args as well.
func (s *Service) log(ctx context.Context, level logLevel, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if withFields, ok := logger.(FieldsLogger); ok {
		logger = withFields.WithFields(copyAnyMap(fields))
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	args := make([]any, 0, 2*len(keys))
	for _, key := range keys {
		args = append(args, key, fields[key])
	}

	switch level {
	case levelError:
		logger.Error(message, args...)
	case levelWarn:
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

// normalizeOperation lowercases and snake-cases an operation name.
func normalizeOperation(operation string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
}
