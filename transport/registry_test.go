package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-mastodon/core"
)

type staticAdapter struct {
	kind string
}

func (a staticAdapter) Kind() string { return a.kind }

func (a staticAdapter) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	return core.TransportResponse{StatusCode: 200}, nil
}

func TestRegistry_RegisterGetAndListDeterministic(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(staticAdapter{kind: "streaming"}); err != nil {
		t.Fatalf("register streaming adapter: %v", err)
	}
	if err := registry.Register(staticAdapter{kind: "rest"}); err != nil {
		t.Fatalf("register rest adapter: %v", err)
	}

	if _, ok := registry.Get("REST"); !ok {
		t.Fatalf("expected rest adapter to be registered")
	}

	listed := registry.List()
	if len(listed) != 2 {
		t.Fatalf("expected 2 adapters, got %d", len(listed))
	}
	if listed[0].Kind() != "rest" || listed[1].Kind() != "streaming" {
		t.Fatalf("expected deterministic sorted order, got %q and %q", listed[0].Kind(), listed[1].Kind())
	}

	if err := registry.Register(staticAdapter{kind: "rest"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRegistry_RegisterFactoryBuildsCustomAdapter(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterFactory("custom", func(config map[string]any) (core.TransportAdapter, error) {
		kind := strings.TrimSpace(fmt.Sprint(config["kind"]))
		if kind == "" {
			kind = "custom"
		}
		return staticAdapter{kind: kind}, nil
	}); err != nil {
		t.Fatalf("register adapter factory: %v", err)
	}

	adapter, err := registry.Build("custom", map[string]any{"kind": "bulk"})
	if err != nil {
		t.Fatalf("build adapter from factory: %v", err)
	}
	if adapter.Kind() != "bulk" {
		t.Fatalf("expected bulk adapter from factory, got %q", adapter.Kind())
	}
	if _, err := registry.Build("missing", nil); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestNewDefaultRegistry_BuildsRESTAdapterWithTimeout(t *testing.T) {
	registry := NewDefaultRegistry()
	adapter, err := registry.Build(KindREST, map[string]any{"timeout": "10s", "user_agent": "test-agent"})
	if err != nil {
		t.Fatalf("build rest adapter: %v", err)
	}
	rest, ok := adapter.(*RESTAdapter)
	if !ok {
		t.Fatalf("expected rest adapter, got %T", adapter)
	}
	client, ok := rest.Client.(*http.Client)
	if !ok || client.Timeout != 10*time.Second {
		t.Fatalf("expected 10s client timeout, got %#v", rest.Client)
	}
	if rest.DefaultHeaders["User-Agent"] != "test-agent" {
		t.Fatalf("expected user agent default header, got %#v", rest.DefaultHeaders)
	}

	if _, err := registry.Build(KindREST, map[string]any{"timeout": "soon"}); err == nil {
		t.Fatalf("expected invalid timeout error")
	}
}

func TestDecodeRESTConfig(t *testing.T) {
	cfg, err := DecodeRESTConfig(nil)
	if err != nil {
		t.Fatalf("decode empty config: %v", err)
	}
	if cfg.Timeout != defaultRESTClientTimeout || cfg.MaxResponseBodyBytes != 0 {
		t.Fatalf("expected defaults, got %#v", cfg)
	}

	cfg, err = DecodeRESTConfig(map[string]any{
		"timeout":                 5 * time.Second,
		"max_response_body_bytes": 2048,
		"user_agent":              " go-mastodon-test ",
	})
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Timeout != 5*time.Second || cfg.MaxResponseBodyBytes != 2048 || cfg.UserAgent != "go-mastodon-test" {
		t.Fatalf("unexpected decoded config %#v", cfg)
	}

	if _, err := DecodeRESTConfig(map[string]any{"max_response_body_bytes": "lots"}); err == nil {
		t.Fatalf("expected non-numeric body limit to fail")
	}
}

func TestRESTAdapter_DoSendsMethodHeadersRepeatedQueryAndForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if got := r.URL.Query()["timeline[]"]; len(got) != 2 || got[0] != "home" || got[1] != "notifications" {
			t.Errorf("expected repeated timeline[] values, got %#v", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected authorization header, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("expected form content type, got %q", got)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		if string(body) != "home%5Blast_read_id%5D=103" {
			t.Errorf("unexpected form body %q", string(body))
		}
		w.Header().Set("X-RateLimit-Remaining", "299")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	result, err := adapter.Do(context.Background(), core.TransportRequest{
		Method: "POST",
		URL:    server.URL + "/api/v1/markers",
		Query:  url.Values{"timeline[]": {"home", "notifications"}},
		Headers: map[string]string{
			"Authorization": "Bearer tok",
		},
		Body:    []byte(url.Values{"home[last_read_id]": {"103"}}.Encode()),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("perform rest request: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected ok status, got %d", result.StatusCode)
	}
	if result.Headers["X-Ratelimit-Remaining"] != "299" {
		t.Fatalf("expected canonical rate limit header, got %#v", result.Headers)
	}
}

func TestRESTAdapter_ReturnsNon2xxWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"The access token is invalid"}`))
	}))
	defer server.Close()

	result, err := NewRESTAdapter(server.Client()).Do(context.Background(), core.TransportRequest{URL: server.URL})
	if err != nil {
		t.Fatalf("expected status passthrough, got %v", err)
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", result.StatusCode)
	}
}

func TestNewRESTAdapter_DefaultClientTimeout(t *testing.T) {
	adapter := NewRESTAdapter(nil)
	httpClient, ok := adapter.Client.(*http.Client)
	if !ok {
		t.Fatalf("expected default http client implementation")
	}
	if httpClient.Timeout != defaultRESTClientTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultRESTClientTimeout, httpClient.Timeout)
	}
	if adapter.MaxResponseBodyBytes != defaultRESTResponseBodyLimit {
		t.Fatalf("expected default response body limit %d, got %d", defaultRESTResponseBodyLimit, adapter.MaxResponseBodyBytes)
	}
}

func TestRESTAdapter_RequestBodyLimitOverridesAdapterLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 1024

	_, err := adapter.Do(context.Background(), core.TransportRequest{
		Method:               "GET",
		URL:                  server.URL,
		MaxResponseBodyBytes: 4,
	})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}
	if !strings.Contains(err.Error(), "response body exceeds limit of 4 bytes") {
		t.Fatalf("unexpected error: %v", err)
	}
}
