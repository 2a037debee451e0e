package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mastodon/core"
)

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: lookup mastodon.invalid: no such host")
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.ServiceErrorExternalFailure {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorExternalFailure, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_ClientFailureIsUnreachable(t *testing.T) {
	_, err := NewRESTAdapter(failingDoer{}).Do(context.Background(), core.TransportRequest{
		URL: "https://mastodon.invalid/api/v1/accounts/verify_credentials",
	})
	if !core.HasTextCode(err, core.ServiceErrorUnreachable) {
		t.Fatalf("expected %s, got %v", core.ServiceErrorUnreachable, err)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Metadata["host"] != "mastodon.invalid" {
		t.Fatalf("expected host metadata, got %#v", rich)
	}
}

func TestRESTAdapter_InvalidURLReturnsBadInput(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/only"} {
		_, err := NewRESTAdapter(nil).Do(context.Background(), core.TransportRequest{URL: raw})
		if !core.HasTextCode(err, core.ServiceErrorBadInput) {
			t.Fatalf("url %q: expected bad input, got %v", raw, err)
		}
	}
}
