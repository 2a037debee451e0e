package ratelimit

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-mastodon/core"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Window is the rate limit window a Mastodon instance reported on one
// response. Instances report a shared per-account window, usually 300
// requests per 5 minutes.
type Window struct {
	Limit     int
	Remaining int
	ResetAt   time.Time

	hasLimit     bool
	hasRemaining bool
	hasReset     bool
}

// ParseWindow reads the X-RateLimit-* headers. Header names match case
// insensitively and malformed values are ignored.
func ParseWindow(headers map[string]string) Window {
	w := Window{}
	if limit, ok := headerInt(headers, HeaderLimit); ok {
		w.Limit, w.hasLimit = limit, true
	}
	if remaining, ok := headerInt(headers, HeaderRemaining); ok {
		w.Remaining, w.hasRemaining = remaining, true
	}
	if resetAt, ok := parseReset(lookupHeader(headers, HeaderReset)); ok {
		w.ResetAt, w.hasReset = resetAt, true
	}
	return w
}

// Reported is true when the response carried any window header.
func (w Window) Reported() bool {
	return w.hasLimit || w.hasRemaining || w.hasReset
}

// Exhausted is true when the instance reported no requests left.
func (w Window) Exhausted() bool {
	return w.hasRemaining && w.Remaining <= 0
}

func (w Window) applyTo(state *State) {
	if w.hasLimit {
		state.Limit = w.Limit
	}
	if w.hasRemaining {
		state.Remaining = w.Remaining
	}
	if w.hasReset {
		resetAt := w.ResetAt
		state.ResetAt = &resetAt
	}
}

// RetryAfter resolves the server's retry hint, preferring the value the
// transport already extracted over the raw header.
func RetryAfter(res core.ProviderResponseMeta, now time.Time) (time.Duration, bool) {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		return *res.RetryAfter, true
	}
	raw := lookupHeader(res.Headers, HeaderRetryAfter)
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC3339Nano} {
		at, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if at.After(now) {
			return at.Sub(now), true
		}
		return 0, false
	}
	return 0, false
}

// parseReset accepts the ISO 8601 timestamp Mastodon sends and unix seconds
// for proxies that rewrite it.
func parseReset(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if at, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return at.UTC(), true
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func headerInt(headers map[string]string, name string) (int, bool) {
	value := lookupHeader(headers, name)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func lookupHeader(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
