package mastodon

import (
	"github.com/goliatone/go-mastodon/cache"
	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/ratelimit"
	"github.com/goliatone/go-mastodon/transport"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type Signer = core.Signer
type CredentialStore = core.CredentialStore
type SecretProvider = core.SecretProvider
type ResponseCache = core.ResponseCache
type RateLimitPolicy = core.RateLimitPolicy

type ExecuteRequest = core.ExecuteRequest
type ExecuteResult = core.ExecuteResult
type ActiveCredential = core.ActiveCredential

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithRegistry          = core.WithRegistry
	WithCredentialStore   = core.WithCredentialStore
	WithCredentialCodec   = core.WithCredentialCodec
	WithSecretProvider    = core.WithSecretProvider
	WithSigner            = core.WithSigner
	WithTransport         = core.WithTransport
	WithTransportResolver = core.WithTransportResolver
	WithRateLimitPolicy   = core.WithRateLimitPolicy
	WithResponseCache     = core.WithResponseCache
	WithRetrySleep        = core.WithRetrySleep
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup builds a service ready for network use. It defaults the REST
// transport registry, an in-memory rate limit policy and, when cfg.Cache is
// enabled, an in-process response cache. Explicit options override these.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	defaults := []Option{
		core.WithTransportResolver(transport.NewDefaultRegistry()),
		core.WithRateLimitPolicy(ratelimit.NewPolicyFromConfig(ratelimit.NewMemoryStateStore(), cfg.Retry)),
	}
	if cfg.Cache.Enabled {
		responseCache, err := cache.NewResponseCacheFromConfig(cfg.Cache)
		if err != nil {
			return nil, err
		}
		defaults = append(defaults, core.WithResponseCache(responseCache))
	}
	return core.Setup(cfg, append(defaults, opts...)...)
}
