package mastodon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mastodoncommand "github.com/goliatone/go-mastodon/command"
	"github.com/goliatone/go-mastodon/core"
	provider "github.com/goliatone/go-mastodon/providers/mastodon"
	mastodonquery "github.com/goliatone/go-mastodon/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.SaveCredential == nil || commands.RevokeCredential == nil || commands.SaveMarkers == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.VerifyCredential == nil || queries.GetMarkers == nil || queries.MarkerSnapshot == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected missing service error")
	}
	var facade *Facade
	if facade.Service() != nil || facade.Commands().SaveMarkers != nil {
		t.Fatalf("expected nil facade to return zero values")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().RevokeCredential.Execute(context.Background(), mastodoncommand.RevokeCredentialMessage{
		ConnectionID: "conn_1",
		Reason:       "manual",
	}); err != nil {
		t.Fatalf("execute revoke command: %v", err)
	}
	if svc.lastRevokeConnectionID != "conn_1" || svc.lastRevokeReason != "manual" {
		t.Fatalf("unexpected revoke delegation payload")
	}

	if err := facade.Commands().SaveMarkers.Execute(context.Background(), mastodoncommand.SaveMarkersMessage{
		Connection: provider.ConnectionRef{ConnectionID: "conn_1"},
		Update:     provider.NewMarkerUpdateRequest("103", ""),
	}); err != nil {
		t.Fatalf("execute save markers: %v", err)
	}
	if svc.lastUpdate.Home == nil || svc.lastUpdate.Home.LastReadID != "103" || svc.lastUpdate.Notifications != nil {
		t.Fatalf("unexpected save markers delegation %#v", svc.lastUpdate)
	}

	markers, err := facade.Queries().GetMarkers.Query(context.Background(), mastodonquery.GetMarkersMessage{
		Connection: provider.ConnectionRef{ConnectionID: "conn_1"},
		Timelines:  []provider.Timeline{provider.TimelineHome},
	})
	if err != nil {
		t.Fatalf("query markers: %v", err)
	}
	if markers.Home == nil || markers.Home.LastReadID != "103" {
		t.Fatalf("unexpected markers query result %#v", markers)
	}
}

func TestFacade_UsesInjectedSnapshotReader(t *testing.T) {
	snapshots := &stubSnapshotReader{out: provider.MarkersResponse{
		Notifications: &provider.Marker{LastReadID: "7", Version: 2},
	}}
	facade, err := NewFacade(&stubFacadeService{}, WithSnapshotReader(snapshots))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	out, err := facade.Queries().MarkerSnapshot.Query(context.Background(), mastodonquery.MarkerSnapshotMessage{ConnectionID: "conn_1"})
	if err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	if snapshots.calls != 1 || out.Notifications == nil || out.Notifications.LastReadID != "7" {
		t.Fatalf("expected injected snapshot reader to serve query, got %#v", out)
	}
}

func TestNewClient_SavesMarkersAgainstInstance(t *testing.T) {
	var form string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/markers" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err == nil {
			form = r.PostForm.Encode()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"home":{"last_read_id":"103","version":4,"updated_at":"2026-01-02T03:04:05.000Z"}}`))
	}))
	defer server.Close()

	client, err := NewClient(DefaultConfig(), []Option{WithRetrySleep(noSleep)})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	facade, err := NewFacade(client)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	credential := provider.TokenCredential{BaseURL: server.URL, AccessToken: "tok"}
	err = facade.Commands().SaveMarkers.Execute(context.Background(), mastodoncommand.SaveMarkersMessage{
		Connection: provider.ConnectionRef{Credential: &credential},
		Update:     provider.NewMarkerUpdateRequest("103", ""),
	})
	if err != nil {
		t.Fatalf("save markers: %v", err)
	}
	if form != "home%5Blast_read_id%5D=103" {
		t.Fatalf("unexpected form body %q", form)
	}
}

func TestMastodonProvider(t *testing.T) {
	if got := MastodonProvider().ID(); got != provider.ProviderID {
		t.Fatalf("expected provider id %q, got %q", provider.ProviderID, got)
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

type stubFacadeService struct {
	lastRevokeConnectionID string
	lastRevokeReason       string
	lastUpdate             provider.MarkerUpdateRequest
}

func (s *stubFacadeService) SaveCredential(_ context.Context, connectionID string, _ provider.TokenCredential) (core.Credential, error) {
	return core.Credential{ConnectionID: connectionID, Status: core.CredentialStatusActive}, nil
}

func (s *stubFacadeService) RevokeCredential(_ context.Context, connectionID string, reason string) error {
	s.lastRevokeConnectionID = connectionID
	s.lastRevokeReason = reason
	return nil
}

func (s *stubFacadeService) SaveMarkers(_ context.Context, _ provider.ConnectionRef, update provider.MarkerUpdateRequest) (provider.MarkersResponse, error) {
	s.lastUpdate = update
	return provider.MarkersResponse{}, nil
}

func (s *stubFacadeService) VerifyCredentials(context.Context, provider.ConnectionRef) (provider.Account, error) {
	return provider.Account{ID: "1", Username: "alice"}, nil
}

func (s *stubFacadeService) GetMarkers(context.Context, provider.ConnectionRef, ...provider.Timeline) (provider.MarkersResponse, error) {
	return provider.MarkersResponse{Home: &provider.Marker{LastReadID: "103", Version: 4}}, nil
}

func (s *stubFacadeService) LatestSnapshot(context.Context, string) (provider.MarkersResponse, error) {
	return provider.MarkersResponse{}, nil
}

type stubSnapshotReader struct {
	calls int
	out   provider.MarkersResponse
}

func (s *stubSnapshotReader) LatestSnapshot(context.Context, string) (provider.MarkersResponse, error) {
	s.calls++
	return s.out, nil
}
