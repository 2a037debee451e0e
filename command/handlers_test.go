package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/providers/mastodon"
)

func TestSaveCredentialCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	svc := stubMutatingService{
		saveCredentialFn: func(_ context.Context, connectionID string, cred mastodon.TokenCredential) (core.Credential, error) {
			called = true
			if connectionID != "conn_1" || cred.AccessToken != "tok" {
				t.Fatalf("unexpected save payload: %q %#v", connectionID, cred)
			}
			return core.Credential{ID: "cred_1", ConnectionID: connectionID, Version: 3}, nil
		},
	}

	collector := gocmd.NewResult[core.Credential]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewSaveCredentialCommand(svc).Execute(ctx, SaveCredentialMessage{
		ConnectionID: "conn_1",
		Credential:   mastodon.TokenCredential{BaseURL: "https://mastodon.social", AccessToken: "tok"},
	})
	if err != nil {
		t.Fatalf("execute save credential: %v", err)
	}
	if !called {
		t.Fatalf("expected save credential invocation")
	}
	stored, ok := collector.Load()
	if !ok || stored.Version != 3 {
		t.Fatalf("expected stored credential result, got %#v", stored)
	}
}

func TestRevokeCredentialCommand_ExecuteDelegates(t *testing.T) {
	called := false
	svc := stubMutatingService{
		revokeCredentialFn: func(_ context.Context, connectionID string, reason string) error {
			called = true
			if connectionID != "conn_1" || reason != "manual" {
				t.Fatalf("unexpected revoke payload: %q %q", connectionID, reason)
			}
			return nil
		},
	}
	if err := NewRevokeCredentialCommand(svc).Execute(context.Background(), RevokeCredentialMessage{
		ConnectionID: "conn_1",
		Reason:       "manual",
	}); err != nil {
		t.Fatalf("execute revoke: %v", err)
	}
	if !called {
		t.Fatalf("expected revoke invocation")
	}
}

func TestSaveMarkersCommand_ExecuteStoresMarkers(t *testing.T) {
	svc := stubMutatingService{
		saveMarkersFn: func(_ context.Context, ref mastodon.ConnectionRef, update mastodon.MarkerUpdateRequest) (mastodon.MarkersResponse, error) {
			if ref.ConnectionID != "conn_1" {
				t.Fatalf("unexpected connection %q", ref.ConnectionID)
			}
			payload := mastodon.EncodePayload(update)
			if payload["home[last_read_id]"] != "103" {
				t.Fatalf("unexpected payload %#v", payload)
			}
			return mastodon.MarkersResponse{Home: &mastodon.Marker{LastReadID: "103", Version: 2}}, nil
		},
	}

	collector := gocmd.NewResult[mastodon.MarkersResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewSaveMarkersCommand(svc).Execute(ctx, SaveMarkersMessage{
		Connection: mastodon.ConnectionRef{ConnectionID: "conn_1"},
		Update:     mastodon.NewMarkerUpdateRequest("103", ""),
	})
	if err != nil {
		t.Fatalf("execute save markers: %v", err)
	}
	stored, ok := collector.Load()
	if !ok || stored.Home == nil || stored.Home.Version != 2 {
		t.Fatalf("expected stored markers, got %#v", stored)
	}
}

func TestSaveMarkersCommand_PropagatesServiceError(t *testing.T) {
	expected := errors.New("boom")
	svc := stubMutatingService{
		saveMarkersFn: func(context.Context, mastodon.ConnectionRef, mastodon.MarkerUpdateRequest) (mastodon.MarkersResponse, error) {
			return mastodon.MarkersResponse{}, expected
		},
	}
	err := NewSaveMarkersCommand(svc).Execute(context.Background(), SaveMarkersMessage{
		Connection: mastodon.ConnectionRef{ConnectionID: "conn_1"},
		Update:     mastodon.NewMarkerUpdateRequest("1", "2"),
	})
	if !errors.Is(err, expected) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{"save credential ok", SaveCredentialMessage{ConnectionID: "conn_1", Credential: mastodon.TokenCredential{AccessToken: "tok"}}, false},
		{"save credential missing connection", SaveCredentialMessage{Credential: mastodon.TokenCredential{AccessToken: "tok"}}, true},
		{"save credential missing token", SaveCredentialMessage{ConnectionID: "conn_1"}, true},
		{"revoke ok", RevokeCredentialMessage{ConnectionID: "conn_1"}, false},
		{"revoke missing connection", RevokeCredentialMessage{}, true},
		{
			"save markers inline credential",
			SaveMarkersMessage{
				Connection: mastodon.ConnectionRef{Credential: &mastodon.TokenCredential{AccessToken: "tok"}},
				Update:     mastodon.NewMarkerUpdateRequest("", "9"),
			},
			false,
		},
		{"save markers empty update", SaveMarkersMessage{Connection: mastodon.ConnectionRef{ConnectionID: "conn_1"}}, true},
		{"save markers no connection", SaveMarkersMessage{Update: mastodon.NewMarkerUpdateRequest("1", "")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

type stubMutatingService struct {
	saveCredentialFn   func(ctx context.Context, connectionID string, cred mastodon.TokenCredential) (core.Credential, error)
	revokeCredentialFn func(ctx context.Context, connectionID string, reason string) error
	saveMarkersFn      func(ctx context.Context, ref mastodon.ConnectionRef, update mastodon.MarkerUpdateRequest) (mastodon.MarkersResponse, error)
}

func (s stubMutatingService) SaveCredential(ctx context.Context, connectionID string, cred mastodon.TokenCredential) (core.Credential, error) {
	if s.saveCredentialFn == nil {
		return core.Credential{}, nil
	}
	return s.saveCredentialFn(ctx, connectionID, cred)
}

func (s stubMutatingService) RevokeCredential(ctx context.Context, connectionID string, reason string) error {
	if s.revokeCredentialFn == nil {
		return nil
	}
	return s.revokeCredentialFn(ctx, connectionID, reason)
}

func (s stubMutatingService) SaveMarkers(
	ctx context.Context,
	ref mastodon.ConnectionRef,
	update mastodon.MarkerUpdateRequest,
) (mastodon.MarkersResponse, error) {
	if s.saveMarkersFn == nil {
		return mastodon.MarkersResponse{}, nil
	}
	return s.saveMarkersFn(ctx, ref, update)
}
