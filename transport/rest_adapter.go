package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mastodon/core"
)

const KindREST = "rest"

const (
	defaultRESTClientTimeout           = 30 * time.Second
	defaultRESTResponseBodyLimit int64 = 10 << 20 // 10 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter performs Mastodon API calls over net/http. Form bodies are sent
// as application/x-www-form-urlencoded unless the request sets its own type.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

// Do sends req. Non-2xx statuses are returned as responses, not errors;
// core.Service classifies them.
func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, failure(goerrors.CategoryInternal,
			"transport: rest adapter requires an http client", nil, map[string]any{"adapter": KindREST})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newHTTPRequest(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, unreachable(err, map[string]any{
			"adapter": KindREST,
			"method":  httpReq.Method,
			"host":    httpReq.URL.Host,
		})
	}
	defer httpRes.Body.Close()

	payload, err := readLimited(httpRes, resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes))
	if err != nil {
		return core.TransportResponse{}, err
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

// newHTTPRequest appends req.Query to any query already in req.URL. Repeated
// keys such as "timeline[]" keep every value.
func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req core.TransportRequest) (*http.Request, error) {
	rawURL := strings.TrimSpace(req.URL)
	target, err := url.Parse(rawURL)
	switch {
	case rawURL == "":
		return nil, failure(goerrors.CategoryBadInput, "transport: request url is required", nil, map[string]any{"adapter": KindREST})
	case err == nil && (target.Scheme == "" || target.Host == ""):
		err = fmt.Errorf("missing scheme or host")
		fallthrough
	case err != nil:
		return nil, failure(goerrors.CategoryBadInput, "transport: invalid request url", err, map[string]any{"adapter": KindREST, "url": rawURL})
	}

	if len(req.Query) > 0 {
		query := target.Query()
		for key, values := range req.Query {
			if key = strings.TrimSpace(key); key == "" {
				continue
			}
			for _, value := range values {
				query.Add(key, value)
			}
		}
		target.RawQuery = query.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, failure(goerrors.CategoryBadInput, "transport: create http request", err, map[string]any{
			"adapter": KindREST,
			"method":  method,
			"url":     target.String(),
		})
	}

	setHeaders(httpReq.Header, a.DefaultHeaders, true)
	setHeaders(httpReq.Header, req.Headers, false)
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return httpReq, nil
}

func setHeaders(dst http.Header, src map[string]string, trimValues bool) {
	for key, value := range src {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if trimValues {
			value = strings.TrimSpace(value)
		}
		dst.Set(key, value)
	}
}

func readLimited(res *http.Response, limit int64) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, failure(goerrors.CategoryExternal, "transport: read response body", err, map[string]any{
			"adapter":     KindREST,
			"status_code": res.StatusCode,
		})
	}
	if int64(len(payload)) > limit {
		return nil, failure(goerrors.CategoryExternal,
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit), nil,
			map[string]any{
				"adapter":          KindREST,
				"status_code":      res.StatusCode,
				"response_limit_b": limit,
			})
	}
	return payload, nil
}

// flattenHeaders joins repeated values with commas.
func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	switch {
	case requestLimit > 0:
		return requestLimit
	case adapterLimit > 0:
		return adapterLimit
	default:
		return defaultRESTResponseBodyLimit
	}
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
