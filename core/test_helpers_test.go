package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

type testProvider struct {
	id     string
	signer Signer
}

func (p testProvider) ID() string { return p.id }

func (p testProvider) AuthKind() string { return AuthKindToken }

func (p testProvider) Descriptor() CredentialDescriptor {
	return CredentialDescriptor{
		Name:        p.id,
		DisplayName: "Test Token",
		Fields: []CredentialField{
			{Name: "baseUrl", Type: CredentialFieldString, Required: true},
			{Name: "accessToken", Type: CredentialFieldSecret, Required: true},
		},
		Test: RequestSpec{Method: http.MethodGet, BaseURL: "{{baseUrl}}", Path: "/api/v1/accounts/verify_credentials"},
	}
}

func (p testProvider) Signer() Signer { return p.signer }

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	return []byte("enc:" + base64.StdEncoding.EncodeToString(plaintext)), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if value == "" || !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

func (testSecretProvider) Metadata() (string, int) {
	return "test-key", 1
}

type memoryCredentialStore struct {
	mu      sync.Mutex
	current map[string]Credential
	next    int
	saved   []SaveCredentialInput
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{current: map[string]Credential{}}
}

func (s *memoryCredentialStore) SaveNewVersion(_ context.Context, in SaveCredentialInput) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.saved = append(s.saved, in)
	credential := Credential{
		ID:                fmt.Sprintf("cred_%d", s.next),
		ConnectionID:      in.ConnectionID,
		ProviderID:        in.ProviderID,
		BaseURL:           in.BaseURL,
		Version:           s.next,
		EncryptedPayload:  append([]byte(nil), in.EncryptedPayload...),
		PayloadFormat:     in.PayloadFormat,
		PayloadVersion:    in.PayloadVersion,
		TokenType:         in.TokenType,
		Scopes:            append([]string(nil), in.Scopes...),
		Status:            in.Status,
		EncryptionKeyID:   in.EncryptionKeyID,
		EncryptionVersion: in.EncryptionVersion,
	}
	if in.ExpiresAt != nil {
		credential.ExpiresAt = *in.ExpiresAt
	}
	s.current[in.ConnectionID] = credential
	return credential, nil
}

func (s *memoryCredentialStore) GetActiveByConnection(_ context.Context, connectionID string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.current[connectionID]
	if !ok || credential.Status != CredentialStatusActive {
		return Credential{}, ErrCredentialNotFound
	}
	return credential, nil
}

func (s *memoryCredentialStore) RevokeActive(_ context.Context, connectionID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.current[connectionID]
	if !ok {
		return nil
	}
	credential.Status = CredentialStatusRevoked
	credential.RevocationReason = reason
	s.current[connectionID] = credential
	return nil
}

type memoryResponseCache struct {
	mu    sync.Mutex
	items map[string]TransportResponse
	sets  int
}

func newMemoryResponseCache() *memoryResponseCache {
	return &memoryResponseCache{items: map[string]TransportResponse{}}
}

func (c *memoryResponseCache) Get(_ context.Context, key string) (TransportResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.items[key]
	return res, ok, nil
}

func (c *memoryResponseCache) Set(_ context.Context, key string, res TransportResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = res
	c.sets++
	return nil
}

func (c *memoryResponseCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

type recordedRateLimitCall struct {
	key    RateLimitKey
	status int
}

type recordingRateLimitPolicy struct {
	mu     sync.Mutex
	before []RateLimitKey
	after  []recordedRateLimitCall
	err    error
}

func (p *recordingRateLimitPolicy) BeforeCall(_ context.Context, key RateLimitKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.before = append(p.before, key)
	return p.err
}

func (p *recordingRateLimitPolicy) AfterCall(_ context.Context, key RateLimitKey, res ProviderResponseMeta) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.after = append(p.after, recordedRateLimitCall{key: key, status: res.StatusCode})
	return nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (l stubLogger) WithContext(context.Context) Logger {
	return l
}

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, delay time.Duration) error {
		if delays != nil {
			*delays = append(*delays, delay)
		}
		return nil
	}
}
