package core

import (
	"context"
	"net/http"
	"net/url"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	AuthKindToken  = "token"
	AuthKindOAuth2 = "oauth2"
)

// ActiveCredential is the decrypted credential used to sign outgoing requests.
type ActiveCredential struct {
	ConnectionID string
	BaseURL      string
	TokenType    string
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresAt    *time.Time
	Metadata     map[string]any
}

type SaveCredentialInput struct {
	ConnectionID      string
	ProviderID        string
	BaseURL           string
	EncryptedPayload  []byte
	PayloadFormat     string
	PayloadVersion    int
	TokenType         string
	Scopes            []string
	ExpiresAt         *time.Time
	Status            CredentialStatus
	EncryptionKeyID   string
	EncryptionVersion int
}

type Provider interface {
	ID() string
	AuthKind() string
	Descriptor() CredentialDescriptor
}

// ProviderSigner lets a provider override the service default signer.
type ProviderSigner interface {
	Signer() Signer
}

type Registry interface {
	Register(provider Provider) error
	Get(id string) (Provider, bool)
	List() []Provider
}

type CredentialStore interface {
	SaveNewVersion(ctx context.Context, in SaveCredentialInput) (Credential, error)
	GetActiveByConnection(ctx context.Context, connectionID string) (Credential, error)
	RevokeActive(ctx context.Context, connectionID string, reason string) error
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// SecretMetadataProvider is implemented by secret providers that expose key
// identity, recorded alongside each encrypted credential version.
type SecretMetadataProvider interface {
	Metadata() (keyID string, version int)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Signer interface {
	Sign(ctx context.Context, req *http.Request, cred ActiveCredential) error
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                url.Values
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Metadata             map[string]any
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// RateLimitBucketAPI is the bucket every call is keyed on. Mastodon reports
// one window per account, shared by all endpoints.
const RateLimitBucketAPI = "api"

type RateLimitKey struct {
	ProviderID string
	ScopeID    string
	BucketKey  string
}

type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ProviderResponseMeta) error
}

// Throttle is implemented by BeforeCall errors for a closed bucket. Wait is
// the time left until the bucket reopens.
type Throttle interface {
	error
	Wait() time.Duration
}

// ResponseCache stores successful GET responses keyed by request identity.
type ResponseCache interface {
	Get(ctx context.Context, key string) (TransportResponse, bool, error)
	Set(ctx context.Context, key string, res TransportResponse) error
	Invalidate(ctx context.Context, key string) error
}
