package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/providers/mastodon"
	"github.com/mitchellh/mapstructure"
)

// MarkersSaveParams are the queued parameters of a marker save. Jobs only
// reference stored connections; access tokens never enter the queue.
type MarkersSaveParams struct {
	ConnectionID string                       `mapstructure:"connection_id"`
	Markers      mastodon.MarkerUpdateRequest `mapstructure:"markers"`
	// IdempotencyKey is carried on the execution message, not in Parameters.
	IdempotencyKey string `mapstructure:"-"`
}

func (p MarkersSaveParams) Validate() error {
	if strings.TrimSpace(p.ConnectionID) == "" {
		return fmt.Errorf("gojob: connection id is required")
	}
	if p.Markers.IsEmpty() {
		return fmt.Errorf("gojob: at least one timeline marker is required")
	}
	return nil
}

// Parameters flattens p into plain maps so the message survives JSON
// backed queues. Timelines follow the encoded wire payload.
func (p MarkersSaveParams) Parameters() map[string]any {
	markers := map[string]any{}
	payload := mastodon.EncodePayload(p.Markers)
	for _, timeline := range mastodon.Timelines() {
		if value, ok := payload[lastReadIDKey(timeline)]; ok {
			markers[string(timeline)] = map[string]any{"last_read_id": value}
		}
	}
	return map[string]any{
		"connection_id": strings.TrimSpace(p.ConnectionID),
		"markers":       markers,
	}
}

func NewMarkersSaveMessage(params MarkersSaveParams) (*job.ExecutionMessage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = markersIdempotencyKey(params)
	}
	return &job.ExecutionMessage{
		JobID:          JobIDMarkersSave,
		ScriptPath:     JobIDMarkersSave,
		Parameters:     params.Parameters(),
		IdempotencyKey: key,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}, nil
}

// DecodeMarkersSaveParams decodes queued parameters, rejecting unknown keys.
func DecodeMarkersSaveParams(params map[string]any) (MarkersSaveParams, error) {
	var out MarkersSaveParams
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return MarkersSaveParams{}, err
	}
	if err := decoder.Decode(params); err != nil {
		return MarkersSaveParams{}, fmt.Errorf("gojob: decode markers params: %w", err)
	}
	out.ConnectionID = strings.TrimSpace(out.ConnectionID)
	if err := out.Validate(); err != nil {
		return MarkersSaveParams{}, err
	}
	return out, nil
}

type MarkersWriter interface {
	SaveMarkers(ctx context.Context, ref mastodon.ConnectionRef, update mastodon.MarkerUpdateRequest) (mastodon.MarkersResponse, error)
}

// MarkersSaveHandler runs queued marker saves. Bad input is dead-lettered,
// everything else is retried with exponential delay inside the policy bounds.
type MarkersSaveHandler struct {
	writer      MarkersWriter
	policy      RetryPolicy
	baseBackoff time.Duration
	logger      glog.Logger
}

type MarkersSaveHandlerOption func(*MarkersSaveHandler)

func WithHandlerLogger(logger glog.Logger) MarkersSaveHandlerOption {
	return func(h *MarkersSaveHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithBaseBackoff(delay time.Duration) MarkersSaveHandlerOption {
	return func(h *MarkersSaveHandler) {
		if delay > 0 {
			h.baseBackoff = delay
		}
	}
}

func NewMarkersSaveHandler(writer MarkersWriter, policy RetryPolicy, opts ...MarkersSaveHandlerOption) *MarkersSaveHandler {
	h := &MarkersSaveHandler{
		writer:      writer,
		policy:      policy,
		baseBackoff: 3 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	_, h.logger = glog.Resolve("mastodon.jobs", nil, h.logger)
	return h
}

// Handle processes one delivery. attempt is 1-based.
func (h *MarkersSaveHandler) Handle(ctx context.Context, delivery *DeliveryAdapter, attempt int) error {
	if h == nil || h.writer == nil {
		return fmt.Errorf("gojob: markers writer is required")
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDMarkersSave {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		return delivery.NackForAttempt(ctx, queue.NackOptions{
			DeadLetter: true,
			Reason:     fmt.Sprintf("unsupported job %q", jobID),
		}, attempt)
	}

	params, err := DecodeMarkersSaveParams(msg.Parameters)
	if err != nil {
		h.logger.Warn("dead-lettering invalid marker job", "error", err.Error())
		return delivery.NackForAttempt(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}, attempt)
	}

	_, err = h.writer.SaveMarkers(ctx, mastodon.ConnectionRef{ConnectionID: params.ConnectionID}, params.Markers)
	if err == nil {
		return delivery.Ack(ctx)
	}

	if !isRetryable(err) {
		h.logger.Warn("marker job failed permanently", "connection_id", params.ConnectionID, "error", err.Error())
		return delivery.NackForAttempt(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}, attempt)
	}
	h.logger.Info("retrying marker job", "connection_id", params.ConnectionID, "attempt", attempt, "error", err.Error())
	return delivery.NackForAttempt(ctx, queue.NackOptions{
		Requeue: true,
		Delay:   h.backoff(attempt),
		Reason:  err.Error(),
	}, attempt)
}

func (h *MarkersSaveHandler) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := h.baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if h.policy.MaxDelay > 0 && delay >= h.policy.MaxDelay {
			return h.policy.MaxDelay
		}
	}
	return delay
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	for _, code := range []string{
		core.ServiceErrorBadInput,
		core.ServiceErrorUnauthorized,
		core.ServiceErrorForbidden,
		core.ServiceErrorNotFound,
		core.ServiceErrorCredentialNotFound,
		core.ServiceErrorProviderNotFound,
		mastodon.ErrorInvalidToken,
	} {
		if core.HasTextCode(err, code) {
			return false
		}
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch rich.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput, goerrors.CategoryAuth, goerrors.CategoryAuthz:
			return false
		}
	}
	return true
}

func markersIdempotencyKey(params MarkersSaveParams) string {
	parts := []string{JobIDMarkersSave, strings.TrimSpace(params.ConnectionID)}
	payload := mastodon.EncodePayload(params.Markers)
	for _, timeline := range mastodon.Timelines() {
		if value, ok := payload[lastReadIDKey(timeline)]; ok {
			parts = append(parts, string(timeline)+"="+value)
		}
	}
	return strings.Join(parts, ":")
}

func lastReadIDKey(timeline mastodon.Timeline) string {
	return string(timeline) + "[last_read_id]"
}
