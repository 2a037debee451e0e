package ratelimit

import (
	"testing"
	"time"

	"github.com/goliatone/go-mastodon/core"
)

func TestThrottledError_ToServiceError(t *testing.T) {
	err := ThrottledError{
		Key:        core.RateLimitKey{ProviderID: "mastodon", ScopeID: "conn_1", BucketKey: "save_markers"},
		RetryAfter: 3 * time.Second,
	}

	mapped := err.ToServiceError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != core.ServiceErrorRateLimited {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorRateLimited, mapped.TextCode)
	}
	if mapped.Code != 429 {
		t.Fatalf("expected status code 429, got %d", mapped.Code)
	}
	if mapped.Metadata["connection_id"] != "conn_1" || mapped.Metadata["retry_after_ms"] != int64(3000) {
		t.Fatalf("unexpected metadata %#v", mapped.Metadata)
	}
}
