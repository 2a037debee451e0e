package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/ratelimit"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RateLimitStateStore keeps one row per (provider, connection, bucket) so a
// closed bucket stays closed across restarts and between workers.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	repo, err := newRepository(db, "rate-limit state", func() *rateLimitStateRecord { return &rateLimitStateRecord{} })
	if err != nil {
		return nil, err
	}
	return &RateLimitStateStore{db: db, repo: repo}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.repo == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key, err := rateLimitKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider_id", "=", key.ProviderID),
		repository.SelectBy("scope_id", "=", key.ScopeID),
		repository.SelectBy("bucket_key", "=", key.BucketKey),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return ratelimit.State{}, err
	}
	if len(records) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return records[0].toDomain(), nil
}

// Upsert writes the whole state through the bucket's unique key.
func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key, err := rateLimitKey(state.Key)
	if err != nil {
		return err
	}
	updatedAt := state.UpdatedAt.UTC()
	if state.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	record := &rateLimitStateRecord{
		ID:         uuid.NewString(),
		ProviderID: key.ProviderID,
		ScopeID:    key.ScopeID,
		BucketKey:  key.BucketKey,
		Limit:      state.Limit,
		Remaining:  state.Remaining,
		ResetAt:    utcPointer(state.ResetAt),
		RetryAfter: retryAfterSeconds(state.RetryAfter),
		Throttled:  utcPointer(state.ThrottledUntil),
		Attempts:   state.Attempts,
		LastStatus: state.LastStatus,
		Metadata:   copyAnyMap(state.Metadata),
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider_id, scope_id, bucket_key) DO UPDATE").
		Set("request_limit = EXCLUDED.request_limit").
		Set("remaining = EXCLUDED.remaining").
		Set("reset_at = EXCLUDED.reset_at").
		Set("retry_after_seconds = EXCLUDED.retry_after_seconds").
		Set("throttled_until = EXCLUDED.throttled_until").
		Set("attempts = EXCLUDED.attempts").
		Set("last_status = EXCLUDED.last_status").
		Set("metadata = EXCLUDED.metadata").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	state := ratelimit.State{
		Key: core.RateLimitKey{
			ProviderID: r.ProviderID,
			ScopeID:    r.ScopeID,
			BucketKey:  r.BucketKey,
		},
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetAt:        utcPointer(r.ResetAt),
		ThrottledUntil: utcPointer(r.Throttled),
		Attempts:       r.Attempts,
		LastStatus:     r.LastStatus,
		UpdatedAt:      r.UpdatedAt.UTC(),
		Metadata:       copyAnyMap(r.Metadata),
	}
	if r.RetryAfter != nil && *r.RetryAfter > 0 {
		value := time.Duration(*r.RetryAfter) * time.Second
		state.RetryAfter = &value
	}
	return state
}

func rateLimitKey(key core.RateLimitKey) (core.RateLimitKey, error) {
	key = ratelimit.NormalizeKey(key)
	switch {
	case key.ProviderID == "":
		return key, fmt.Errorf("sqlstore: rate-limit provider id is required")
	case key.ScopeID == "":
		return key, fmt.Errorf("sqlstore: rate-limit connection id is required")
	case key.BucketKey == "":
		return key, fmt.Errorf("sqlstore: rate-limit bucket key is required")
	}
	return key, nil
}

func utcPointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

// retryAfterSeconds rounds sub-second hints up so they are not lost.
func retryAfterSeconds(input *time.Duration) *int {
	if input == nil || *input <= 0 {
		return nil
	}
	seconds := int((*input + time.Second - 1) / time.Second)
	return &seconds
}

var _ ratelimit.StateStore = (*RateLimitStateStore)(nil)
