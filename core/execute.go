package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultTransportKind  = "rest"
	defaultInitialBackoff = 3 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultRetryAfter     = 60 * time.Second
	defaultMaxRetryWait   = 5 * time.Minute

	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRetryAfter         = "Retry-After"
)

var defaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// ExecuteRequest describes one authenticated call against a Mastodon
// instance. Either Credential or ConnectionID must be set; the request URL is
// built from the credential base URL and Path.
type ExecuteRequest struct {
	ProviderID   string
	ConnectionID string
	Credential   *ActiveCredential
	Operation    string
	Method       string
	Path         string
	Query        url.Values
	Form         url.Values
	Headers      map[string]string
	// OneShot disables retries, used by credential verification.
	OneShot     bool
	BypassCache bool
	// Invalidates lists cached GET responses dropped once the call succeeds.
	Invalidates []CacheTarget
}

// CacheTarget identifies a cached GET by path and query on the request's
// instance and credential.
type CacheTarget struct {
	Path  string
	Query url.Values
}

type ExecuteResult struct {
	Response TransportResponse
	Meta     ProviderResponseMeta
	Attempts int
	Cached   bool
}

func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (result ExecuteResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":   req.ProviderID,
		"connection_id": req.ConnectionID,
		"operation":     req.Operation,
		"method":        req.Method,
		"path":          req.Path,
	}
	defer func() {
		if result.Attempts > 0 {
			fields["attempts"] = result.Attempts
		}
		if result.Response.StatusCode > 0 {
			fields["status_code"] = result.Response.StatusCode
		}
		fields["cached"] = result.Cached
		s.observeOperation(ctx, startedAt, "execute", err, fields)
	}()

	if s == nil {
		return ExecuteResult{}, fmt.Errorf("core: service is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resolved, err := s.resolveExecuteRequest(ctx, req)
	if err != nil {
		return ExecuteResult{}, err
	}
	fields["operation"] = resolved.operation

	if resolved.cacheKey != "" {
		cached, ok, cacheErr := s.responseCache.Get(ctx, resolved.cacheKey)
		if cacheErr != nil {
			s.logWarn(ctx, "response cache lookup failed", map[string]any{
				"operation": resolved.operation,
				"error":     cacheErr.Error(),
			})
		} else if ok {
			result.Response = cached
			result.Meta = responseMeta(cached)
			result.Cached = true
			return result, nil
		}
	}

	maxAttempts := s.config.Retry.MaxAttempts
	if maxAttempts <= 0 || req.OneShot {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if resolved.rateLimitEnabled {
			if beforeErr := s.rateLimitPolicy.BeforeCall(ctx, resolved.rateLimitKey); beforeErr != nil {
				return result, s.mapError(beforeErr)
			}
		}

		transportRequest, signErr := signTransportRequest(ctx, resolved.signer, resolved.transportRequest, resolved.credential)
		if signErr != nil {
			return result, s.mapError(signErr)
		}

		response, callErr := resolved.adapter.Do(ctx, transportRequest)
		if callErr != nil {
			lastErr = unreachableError(callErr, resolved, attempt)
			if isContextCancellation(callErr) || attempt >= maxAttempts {
				return result, lastErr
			}
			if sleepErr := s.sleepRetry(ctx, s.backoffForAttempt(attempt)); sleepErr != nil {
				return result, sleepErr
			}
			continue
		}

		meta := responseMeta(response)
		result.Response = response
		result.Meta = meta

		if resolved.rateLimitEnabled {
			if afterErr := s.rateLimitPolicy.AfterCall(ctx, resolved.rateLimitKey, meta); afterErr != nil {
				s.logWarn(ctx, "rate limit state update failed", map[string]any{
					"operation": resolved.operation,
					"error":     afterErr.Error(),
				})
			}
		}
		s.warnOnLowRemaining(ctx, resolved, response.Headers)

		if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
			if resolved.cacheKey != "" {
				if setErr := s.responseCache.Set(ctx, resolved.cacheKey, response); setErr != nil {
					s.logWarn(ctx, "response cache store failed", map[string]any{
						"operation": resolved.operation,
						"error":     setErr.Error(),
					})
				}
			}
			s.invalidateCached(ctx, resolved, req.Invalidates)
			return result, nil
		}

		lastErr = statusError(response, resolved, attempt)
		if attempt >= maxAttempts || !slices.Contains(defaultRetryStatuses, response.StatusCode) {
			return result, lastErr
		}

		delay, waitErr := s.retryDelay(ctx, resolved, response.StatusCode, meta, attempt, lastErr)
		if waitErr != nil {
			return result, waitErr
		}
		s.logWarn(ctx, "retrying request", map[string]any{
			"operation":   resolved.operation,
			"attempt":     attempt,
			"status_code": response.StatusCode,
			"delay_ms":    delay.Milliseconds(),
		})
		if sleepErr := s.sleepRetry(ctx, delay); sleepErr != nil {
			return result, sleepErr
		}
	}

	if lastErr != nil {
		return result, lastErr
	}
	return result, s.mapError(fmt.Errorf("core: request exceeded retry attempts"))
}

type resolvedExecuteRequest struct {
	providerID       string
	operation        string
	baseURL          string
	adapter          TransportAdapter
	signer           Signer
	credential       ActiveCredential
	transportRequest TransportRequest
	rateLimitKey     RateLimitKey
	rateLimitEnabled bool
	cacheKey         string
}

func (s *Service) resolveExecuteRequest(ctx context.Context, req ExecuteRequest) (resolvedExecuteRequest, error) {
	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return resolvedExecuteRequest{}, err
	}
	signer := s.resolveSignerForProvider(provider)
	if signer == nil {
		return resolvedExecuteRequest{}, s.mapError(fmt.Errorf("core: signer is not configured"))
	}

	credential, err := s.resolveCredential(ctx, req.ConnectionID, req.Credential)
	if err != nil {
		return resolvedExecuteRequest{}, err
	}
	baseURL := strings.TrimSpace(credential.BaseURL)
	if baseURL == "" {
		return resolvedExecuteRequest{}, s.mapError(fmt.Errorf("core: base url is required"))
	}

	adapter, err := s.resolveAdapter()
	if err != nil {
		return resolvedExecuteRequest{}, s.mapError(err)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	operation := normalizeOperation(req.Operation)
	if operation == "" {
		operation = normalizeOperation(method + "_" + strings.Trim(strings.ReplaceAll(req.Path, "/", "_"), "_"))
	}

	spec := RequestSpec{Method: method, BaseURL: baseURL, Path: req.Path}
	headers := map[string]string{
		"Accept": "application/json",
	}
	if agent := strings.TrimSpace(s.config.UserAgent); agent != "" {
		headers["User-Agent"] = agent
	}
	for key, value := range req.Headers {
		headers[key] = value
	}

	transportRequest := TransportRequest{
		Method:  method,
		URL:     spec.URL(),
		Headers: headers,
		Query:   cloneValues(req.Query),
		Timeout: s.config.RequestTimeout,
		Metadata: map[string]any{
			"provider_id": provider.ID(),
			"operation":   operation,
		},
	}
	if len(req.Form) > 0 {
		transportRequest.Body = []byte(req.Form.Encode())
		if _, ok := headers["Content-Type"]; !ok {
			transportRequest.Headers["Content-Type"] = "application/x-www-form-urlencoded"
		}
	}

	resolved := resolvedExecuteRequest{
		providerID:       provider.ID(),
		operation:        operation,
		baseURL:          baseURL,
		adapter:          adapter,
		signer:           signer,
		credential:       credential,
		transportRequest: transportRequest,
	}

	if s.rateLimitPolicy != nil {
		scopeID := strings.TrimSpace(credential.ConnectionID)
		if scopeID == "" {
			scopeID = hostOf(baseURL)
		}
		resolved.rateLimitEnabled = scopeID != ""
		resolved.rateLimitKey = RateLimitKey{
			ProviderID: provider.ID(),
			ScopeID:    scopeID,
			BucketKey:  RateLimitBucketAPI,
		}
	}

	if s.responseCache != nil && s.config.Cache.Enabled && method == http.MethodGet && !req.BypassCache {
		resolved.cacheKey = responseCacheKey(provider.ID(), transportRequest, credential)
	}
	return resolved, nil
}

// invalidateCached drops the cached responses a successful write made stale.
func (s *Service) invalidateCached(ctx context.Context, resolved resolvedExecuteRequest, targets []CacheTarget) {
	if len(targets) == 0 || s.responseCache == nil || !s.config.Cache.Enabled {
		return
	}
	for _, target := range targets {
		spec := RequestSpec{Method: http.MethodGet, BaseURL: resolved.baseURL, Path: target.Path}
		key := responseCacheKey(resolved.providerID, TransportRequest{
			Method: http.MethodGet,
			URL:    spec.URL(),
			Query:  cloneValues(target.Query),
		}, resolved.credential)
		if err := s.responseCache.Invalidate(ctx, key); err != nil {
			s.logWarn(ctx, "response cache invalidation failed", map[string]any{
				"operation": resolved.operation,
				"path":      target.Path,
				"error":     err.Error(),
			})
		}
	}
}

func (s *Service) resolveAdapter() (TransportAdapter, error) {
	if s.transport != nil {
		return s.transport, nil
	}
	if s.transportResolver == nil {
		return nil, ErrNoTransport
	}
	config := map[string]any{}
	if s.config.RequestTimeout > 0 {
		config["timeout"] = s.config.RequestTimeout.String()
	}
	return s.transportResolver.Build(defaultTransportKind, config)
}

func (s *Service) backoffForAttempt(attempt int) time.Duration {
	initial := s.config.Retry.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	maxBackoff := s.config.Retry.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	if maxBackoff < initial {
		maxBackoff = initial
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// retryDelay is the wait before the next attempt. A bucket the rate limit
// policy holds closed stretches the wait to its reopening so the next
// BeforeCall passes. Waits beyond the configured cap fail the call with cause.
func (s *Service) retryDelay(
	ctx context.Context,
	resolved resolvedExecuteRequest,
	statusCode int,
	meta ProviderResponseMeta,
	attempt int,
	cause error,
) (time.Duration, error) {
	delay := s.backoffForAttempt(attempt)
	if statusCode == http.StatusTooManyRequests {
		delay = s.retryAfterDelay(meta)
	}
	if resolved.rateLimitEnabled {
		if err := s.rateLimitPolicy.BeforeCall(ctx, resolved.rateLimitKey); err != nil {
			var throttle Throttle
			if !errors.As(err, &throttle) {
				return 0, s.mapError(err)
			}
			delay = max(delay, throttle.Wait())
			cause = s.mapError(err)
		}
	}
	if delay > s.maxRetryWait() {
		return 0, cause
	}
	return delay, nil
}

func (s *Service) maxRetryWait() time.Duration {
	if s.config.Retry.MaxRetryWait > 0 {
		return s.config.Retry.MaxRetryWait
	}
	return defaultMaxRetryWait
}

func (s *Service) retryAfterDelay(meta ProviderResponseMeta) time.Duration {
	if meta.RetryAfter != nil && *meta.RetryAfter > 0 {
		return *meta.RetryAfter
	}
	if s.config.Retry.DefaultRetryAfter > 0 {
		return s.config.Retry.DefaultRetryAfter
	}
	return defaultRetryAfter
}

func (s *Service) sleepRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if s.sleep != nil {
		return s.sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) warnOnLowRemaining(ctx context.Context, resolved resolvedExecuteRequest, headers map[string]string) {
	threshold := s.config.RateLimit.LowRemainingThreshold
	if threshold <= 0 {
		return
	}
	raw := headerValue(headers, headerRateLimitRemaining)
	if raw == "" {
		return
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil || remaining >= threshold {
		return
	}
	fields := map[string]any{
		"provider_id": resolved.providerID,
		"operation":   resolved.operation,
		"remaining":   remaining,
	}
	if limit := headerValue(headers, headerRateLimitLimit); limit != "" {
		fields["limit"] = limit
	}
	s.logWarn(ctx, "rate limit remaining is low", fields)
}

func signTransportRequest(
	ctx context.Context,
	signer Signer,
	request TransportRequest,
	credential ActiveCredential,
) (TransportRequest, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, request.Method, request.URL, nil)
	if err != nil {
		return TransportRequest{}, fmt.Errorf("core: build request for signing: %w", err)
	}
	for key, value := range request.Headers {
		httpRequest.Header.Set(key, value)
	}
	if err := signer.Sign(ctx, httpRequest, credential); err != nil {
		return TransportRequest{}, err
	}
	signed := request
	signed.Headers = make(map[string]string, len(httpRequest.Header))
	for key := range httpRequest.Header {
		signed.Headers[key] = httpRequest.Header.Get(key)
	}
	return signed, nil
}

func responseMeta(response TransportResponse) ProviderResponseMeta {
	meta := ProviderResponseMeta{
		StatusCode: response.StatusCode,
		Headers:    copyStringMap(response.Headers),
		Metadata:   copyAnyMap(response.Metadata),
	}
	if retryAfter, ok := parseRetryAfterHeader(response.Headers); ok {
		meta.RetryAfter = &retryAfter
	}
	return meta
}

func statusError(response TransportResponse, resolved resolvedExecuteRequest, attempt int) error {
	return UpstreamStatusError(response.StatusCode, upstreamErrorMessage(response.Body), resolved.errorMetadata(attempt))
}

func unreachableError(source error, resolved resolvedExecuteRequest, attempt int) error {
	var rich *goerrors.Error
	if goerrors.As(source, &rich) && rich.TextCode == ServiceErrorUnreachable {
		return rich.WithMetadata(resolved.errorMetadata(attempt))
	}
	wrapped := goerrors.New("mastodon: instance unreachable", goerrors.CategoryExternal).
		WithTextCode(ServiceErrorUnreachable).
		WithMetadata(resolved.errorMetadata(attempt))
	wrapped.Source = source
	return withEnvelope(wrapped)
}

func (r resolvedExecuteRequest) errorMetadata(attempt int) map[string]any {
	return map[string]any{
		"provider_id": r.providerID,
		"operation":   r.operation,
		"base_url":    r.baseURL,
		"attempt":     attempt,
	}
}

// upstreamErrorMessage extracts the "error" field of a Mastodon error body.
func upstreamErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	payload := struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Error); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.ErrorDescription)
}

func responseCacheKey(providerID string, request TransportRequest, credential ActiveCredential) string {
	target := request.URL
	if len(request.Query) > 0 {
		target += "?" + request.Query.Encode()
	}
	hash := sha256.New()
	for _, part := range []string{
		request.Method,
		target,
		strings.TrimSpace(credential.ConnectionID),
		credential.AccessToken,
	} {
		hash.Write([]byte(part))
		hash.Write([]byte{0})
	}
	return providerID + ":response:" + hex.EncodeToString(hash.Sum(nil))
}

func parseRetryAfterHeader(headers map[string]string) (time.Duration, bool) {
	raw := headerValue(headers, headerRetryAfter)
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := http.ParseTime(raw); err == nil {
		if delay := time.Until(retryAt); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

func cloneValues(values url.Values) url.Values {
	if len(values) == 0 {
		return nil
	}
	out := make(url.Values, len(values))
	for key, items := range values {
		out[key] = append([]string(nil), items...)
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
