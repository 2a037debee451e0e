package core

import (
	"context"
	"strings"
	"testing"
)

func newCredentialTestService(t *testing.T, store *memoryCredentialStore) *Service {
	t.Helper()
	registry := NewProviderRegistry()
	if err := registry.Register(testProvider{id: "mastodon"}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	svc, err := NewService(DefaultConfig(),
		WithRegistry(registry),
		WithCredentialStore(store),
		WithSecretProvider(testSecretProvider{}),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSaveCredential_EncryptsPayloadAndRecordsKeyMetadata(t *testing.T) {
	store := newMemoryCredentialStore()
	svc := newCredentialTestService(t, store)

	stored, err := svc.SaveCredential(context.Background(), "conn_1", "Mastodon", ActiveCredential{
		BaseURL:     "https://mastodon.social",
		TokenType:   "bearer",
		AccessToken: "tok_plain",
		Scopes:      []string{"read", "write"},
	})
	if err != nil {
		t.Fatalf("save credential: %v", err)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version 1, got %d", stored.Version)
	}
	if strings.Contains(string(stored.EncryptedPayload), "tok_plain") {
		t.Fatalf("expected encrypted payload, got %q", stored.EncryptedPayload)
	}
	saved := store.saved[0]
	if saved.ProviderID != "mastodon" {
		t.Fatalf("expected normalized provider id, got %q", saved.ProviderID)
	}
	if saved.EncryptionKeyID != "test-key" || saved.EncryptionVersion != 1 {
		t.Fatalf("expected secret metadata on save, got %q/%d", saved.EncryptionKeyID, saved.EncryptionVersion)
	}
	if saved.PayloadFormat != CredentialPayloadFormatJSONV1 {
		t.Fatalf("expected json payload format, got %q", saved.PayloadFormat)
	}
}

func TestLoadCredential_RoundTripsActiveCredential(t *testing.T) {
	store := newMemoryCredentialStore()
	svc := newCredentialTestService(t, store)

	if _, err := svc.SaveCredential(context.Background(), "conn_1", "mastodon", ActiveCredential{
		BaseURL:     "https://fosstodon.org",
		TokenType:   "bearer",
		AccessToken: "tok_plain",
	}); err != nil {
		t.Fatalf("save credential: %v", err)
	}

	active, err := svc.LoadCredential(context.Background(), "conn_1")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if active.AccessToken != "tok_plain" || active.BaseURL != "https://fosstodon.org" {
		t.Fatalf("unexpected active credential %#v", active)
	}
	if active.ConnectionID != "conn_1" {
		t.Fatalf("expected connection id on active credential, got %q", active.ConnectionID)
	}
}

func TestLoadCredential_LegacyPayloadFallsBackToRecordBaseURL(t *testing.T) {
	store := newMemoryCredentialStore()
	svc := newCredentialTestService(t, store)
	svc.credentialCodec = LegacyTokenCredentialCodec{}

	if _, err := svc.SaveCredential(context.Background(), "conn_legacy", "mastodon", ActiveCredential{
		BaseURL:     "https://hachyderm.io",
		AccessToken: "tok_legacy",
	}); err != nil {
		t.Fatalf("save credential: %v", err)
	}

	active, err := svc.LoadCredential(context.Background(), "conn_legacy")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if active.BaseURL != "https://hachyderm.io" || active.AccessToken != "tok_legacy" {
		t.Fatalf("unexpected legacy credential %#v", active)
	}
}

func TestRevokeCredential_RemovesActiveCredential(t *testing.T) {
	store := newMemoryCredentialStore()
	svc := newCredentialTestService(t, store)

	if _, err := svc.SaveCredential(context.Background(), "conn_1", "mastodon", ActiveCredential{
		BaseURL:     "https://mastodon.social",
		AccessToken: "tok_plain",
	}); err != nil {
		t.Fatalf("save credential: %v", err)
	}
	if err := svc.RevokeCredential(context.Background(), "conn_1", "user_disconnect"); err != nil {
		t.Fatalf("revoke credential: %v", err)
	}

	_, err := svc.LoadCredential(context.Background(), "conn_1")
	if err == nil {
		t.Fatalf("expected missing credential after revoke")
	}
	if !HasTextCode(err, ServiceErrorCredentialNotFound) {
		t.Fatalf("expected %s, got %v", ServiceErrorCredentialNotFound, err)
	}
}

func TestSaveCredential_RejectsMissingFields(t *testing.T) {
	svc := newCredentialTestService(t, newMemoryCredentialStore())

	cases := map[string]ActiveCredential{
		"missing token":    {BaseURL: "https://mastodon.social"},
		"missing base url": {AccessToken: "tok"},
	}
	for name, cred := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SaveCredential(context.Background(), "conn_1", "mastodon", cred)
			if !HasTextCode(err, ServiceErrorBadInput) {
				t.Fatalf("expected bad input, got %v", err)
			}
		})
	}

	if _, err := svc.SaveCredential(context.Background(), "", "mastodon", ActiveCredential{}); !HasTextCode(err, ServiceErrorBadInput) {
		t.Fatalf("expected bad input for missing connection id, got %v", err)
	}
	if _, err := svc.SaveCredential(context.Background(), "conn_1", "unknown", ActiveCredential{
		BaseURL:     "https://mastodon.social",
		AccessToken: "tok",
	}); !HasTextCode(err, ServiceErrorProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
}
