package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const JobIDMarkersSave = "mastodon.markers.save"

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DefaultRetryPolicy mirrors the request runtime: six attempts, delays capped
// at 30s, dead letter once exhausted.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     6,
		MaxDelay:        30 * time.Second,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt clamps the nack delay to [0, MaxDelay] and decides where
// the message goes. Before MaxAttempts a nack is always requeued unless it
// asks for dead-lettering. From MaxAttempts on it is never requeued, and it
// is dead-lettered only when DeadLetterOnMax is set.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	opts.Reason = strings.TrimSpace(opts.Reason)
	opts.Delay = max(opts.Delay, 0)
	if p.MaxDelay > 0 {
		opts.Delay = min(opts.Delay, p.MaxDelay)
	}

	exhausted := p.MaxAttempts > 0 && attempt >= p.MaxAttempts
	opts.DeadLetter = opts.DeadLetter || (exhausted && p.DeadLetterOnMax)
	if opts.DeadLetter || exhausted {
		opts.Requeue = false
	} else if !opts.Requeue {
		opts.Requeue = true
	}
	return opts
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

// EnqueueMarkersSave queues a marker save for a stored connection.
func (a *EnqueuerAdapter) EnqueueMarkersSave(ctx context.Context, params MarkersSaveParams) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := NewMarkersSaveMessage(params)
	if err != nil {
		return err
	}
	return a.enqueuer.Enqueue(ctx, msg)
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *job.ExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return d.delivery.Message()
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts queue.NackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts queue.NackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, d.policy.NormalizeAttempt(opts, attempt))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (*DeliveryAdapter, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// JobEvent is a worker lifecycle event with the marker job parameters
// already decoded when the message carries them.
type JobEvent struct {
	JobID        string
	ConnectionID string
	Attempt      int
	Delay        time.Duration
	Err          error
	StartedAt    time.Time
	Duration     time.Duration
}

type WorkerHook interface {
	OnStart(ctx context.Context, event JobEvent)
	OnSuccess(ctx context.Context, event JobEvent)
	OnFailure(ctx context.Context, event JobEvent)
	OnRetry(ctx context.Context, event JobEvent)
}

// WorkerHookAdapter forwards go-job worker events to a WorkerHook as
// JobEvents.
type WorkerHookAdapter struct {
	hook WorkerHook
}

func NewWorkerHookAdapter(hook WorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, WorkerHook.OnStart)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, WorkerHook.OnSuccess)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, WorkerHook.OnFailure)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, WorkerHook.OnRetry)
}

func (a *WorkerHookAdapter) forward(ctx context.Context, event worker.Event, call func(WorkerHook, context.Context, JobEvent)) {
	if a == nil || a.hook == nil {
		return
	}
	call(a.hook, ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) JobEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	out := JobEvent{
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
	if message == nil {
		return out
	}
	out.JobID = strings.TrimSpace(message.JobID)
	if out.JobID == JobIDMarkersSave {
		if params, err := DecodeMarkersSaveParams(message.Parameters); err == nil {
			out.ConnectionID = params.ConnectionID
		}
	}
	return out
}

var _ worker.Hook = (*WorkerHookAdapter)(nil)
