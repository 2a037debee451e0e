package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mastodon/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is the last known window for one connection bucket plus the local
// throttle the policy derived from it.
type State struct {
	Key            core.RateLimitKey
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

type StateStore interface {
	Get(ctx context.Context, key core.RateLimitKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

// ThrottledError is returned by BeforeCall while a bucket is closed. No
// request reaches the instance in that case.
type ThrottledError struct {
	Key        core.RateLimitKey
	RetryAfter time.Duration
	Exhausted  bool
}

func (e ThrottledError) Error() string {
	reason := "throttled"
	if e.Exhausted {
		reason = "window exhausted"
	}
	return fmt.Sprintf("ratelimit: %s/%s %s, retry in %s", e.Key.ScopeID, e.Key.BucketKey, reason, e.RetryAfter)
}

func (e ThrottledError) Wait() time.Duration {
	return e.RetryAfter
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"provider_id": e.Key.ProviderID,
		"bucket_key":  e.Key.BucketKey,
	}
	if e.Key.ScopeID != "" {
		metadata["connection_id"] = e.Key.ScopeID
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ServiceErrorRateLimited).
		WithMetadata(metadata)
}

type PolicyOption func(*Policy)

func WithClock(now func() time.Time) PolicyOption {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithBackoff sets the delay used after a 429 that carried no retry hint.
// The delay doubles per consecutive 429 up to maximum.
func WithBackoff(initial, maximum time.Duration) PolicyOption {
	return func(p *Policy) {
		if initial > 0 {
			p.initialBackoff = initial
		}
		if maximum > 0 {
			p.maxBackoff = maximum
		}
	}
}

// Policy closes a bucket after a 429 or when the instance reports an
// exhausted window, and reopens it at the reset time or after backoff.
type Policy struct {
	store          StateStore
	now            func() time.Time
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewPolicy(store StateStore, opts ...PolicyOption) *Policy {
	p := &Policy{
		store:          store,
		now:            func() time.Time { return time.Now().UTC() },
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// NewPolicyFromConfig builds a policy with the retry bounds in cfg.
func NewPolicyFromConfig(store StateStore, cfg core.RetryConfig, opts ...PolicyOption) *Policy {
	base := []PolicyOption{WithBackoff(cfg.InitialBackoff, cfg.MaxBackoff)}
	return NewPolicy(store, append(base, opts...)...)
}

func (p *Policy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.store == nil {
		return nil
	}
	key = NormalizeKey(key)
	state, err := p.store.Get(ctx, key)
	if errors.Is(err, ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	// The bucket reopens once both the 429 throttle and an exhausted window
	// have passed.
	now := p.clock()
	throttled := ThrottledError{Key: key}
	if state.ThrottledUntil != nil && now.Before(*state.ThrottledUntil) {
		throttled.RetryAfter = state.ThrottledUntil.Sub(now)
	}
	if state.Remaining <= 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		throttled.Exhausted = true
		throttled.RetryAfter = max(throttled.RetryAfter, state.ResetAt.Sub(now))
	}
	if throttled.RetryAfter > 0 {
		return throttled
	}
	return nil
}

func (p *Policy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ProviderResponseMeta) error {
	if p == nil || p.store == nil {
		return nil
	}
	key = NormalizeKey(key)
	state, err := p.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = State{Key: key}
	case err != nil:
		return err
	}

	now := p.clock()
	state.Key = key
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now
	state.Metadata = cloneMetadata(state.Metadata)
	maps.Copy(state.Metadata, res.Metadata)

	window := ParseWindow(res.Headers)
	window.applyTo(&state)

	retryAfter, hinted := RetryAfter(res, now)
	state.RetryAfter = nil
	if hinted {
		state.RetryAfter = &retryAfter
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		state.Attempts++
		delay := retryAfter
		if !hinted {
			delay = p.backoff(state.Attempts)
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
	case res.StatusCode < http.StatusInternalServerError && window.Exhausted():
		// The reset time closes the bucket; hinted responses close it too.
		state.Attempts++
		state.ThrottledUntil = nil
		if hinted {
			until := now.Add(retryAfter)
			state.ThrottledUntil = &until
		}
	default:
		state.Attempts = 0
		state.ThrottledUntil = nil
	}
	return p.store.Upsert(ctx, state)
}

func (p *Policy) clock() time.Time {
	if p.now == nil {
		return time.Now().UTC()
	}
	return p.now().UTC()
}

func (p *Policy) backoff(attempt int) time.Duration {
	delay := p.initialBackoff
	for i := 1; i < attempt && delay < p.maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, p.maxBackoff)
}

// NormalizeKey lowercases provider and bucket ids. Connection ids keep their
// case.
func NormalizeKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		ProviderID: strings.ToLower(strings.TrimSpace(key.ProviderID)),
		ScopeID:    strings.TrimSpace(key.ScopeID),
		BucketKey:  strings.ToLower(strings.TrimSpace(key.BucketKey)),
	}
}

func cloneMetadata(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	maps.Copy(out, input)
	return out
}

var (
	_ core.RateLimitPolicy = (*Policy)(nil)
	_ core.Throttle        = ThrottledError{}
)
