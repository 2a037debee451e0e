package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// TransportResolver picks the adapter used for a provider request.
type TransportResolver interface {
	Build(kind string, config map[string]any) (TransportAdapter, error)
}

type CredentialStoreFactory interface {
	BuildCredentialStore(persistenceClient any) (CredentialStore, error)
}

// dependencies are the collaborators a Service runs with. Every field can be
// replaced through an Option; nil fields fall back to defaults in NewService.
type dependencies struct {
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	signer            Signer
	transport         TransportAdapter
	transportResolver TransportResolver
	rateLimitPolicy   RateLimitPolicy
	responseCache     ResponseCache
	registry          Registry
	credentialStore   CredentialStore
	credentialCodec   CredentialCodec
	sleep             func(ctx context.Context, delay time.Duration) error
}

// setup collects options before the Service exists. The repository factory
// and persistence client are only needed to build a credential store.
type setup struct {
	dependencies
	repositoryFactory any
	persistenceClient any
}

type Option func(*setup)

func WithLogger(logger Logger) Option {
	return func(s *setup) { s.logger = logger }
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(s *setup) { s.loggerProvider = provider }
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *setup) { s.metricsRecorder = recorder }
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(s *setup) { s.errorFactory = factory }
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(s *setup) { s.errorMapper = mapper }
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(s *setup) { s.secretProvider = provider }
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(s *setup) { s.configProvider = provider }
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(s *setup) { s.optionsResolver = resolver }
}

func WithSigner(signer Signer) Option {
	return func(s *setup) { s.signer = signer }
}

// WithTransport sets the adapter used for every request. It takes precedence
// over WithTransportResolver.
func WithTransport(adapter TransportAdapter) Option {
	return func(s *setup) { s.transport = adapter }
}

func WithTransportResolver(resolver TransportResolver) Option {
	return func(s *setup) { s.transportResolver = resolver }
}

func WithRateLimitPolicy(policy RateLimitPolicy) Option {
	return func(s *setup) { s.rateLimitPolicy = policy }
}

func WithResponseCache(cache ResponseCache) Option {
	return func(s *setup) { s.responseCache = cache }
}

func WithRegistry(registry Registry) Option {
	return func(s *setup) { s.registry = registry }
}

func WithCredentialStore(store CredentialStore) Option {
	return func(s *setup) { s.credentialStore = store }
}

func WithCredentialCodec(codec CredentialCodec) Option {
	return func(s *setup) { s.credentialCodec = codec }
}

// WithRepositoryFactory accepts a CredentialStoreFactory, or any value with a
// CredentialStore() method, used when no store was given directly.
func WithRepositoryFactory(factory any) Option {
	return func(s *setup) { s.repositoryFactory = factory }
}

func WithPersistenceClient(client any) Option {
	return func(s *setup) { s.persistenceClient = client }
}

// WithRetrySleep replaces the timer used between retry attempts.
func WithRetrySleep(sleep func(ctx context.Context, delay time.Duration) error) Option {
	return func(s *setup) { s.sleep = sleep }
}

// fillDefaults sets every collaborator left nil by the caller.
func (d *dependencies) fillDefaults() {
	if d.errorFactory == nil {
		d.errorFactory = goerrors.New
	}
	if d.errorMapper == nil {
		d.errorMapper = defaultErrorMapper
	}
	if d.metricsRecorder == nil {
		d.metricsRecorder = NopMetricsRecorder{}
	}
	if d.configProvider == nil {
		d.configProvider = NewCfgxConfigProvider(nil)
	}
	if d.optionsResolver == nil {
		d.optionsResolver = GoOptionsResolver{}
	}
	if d.registry == nil {
		d.registry = NewProviderRegistry()
	}
	if d.signer == nil {
		d.signer = BearerTokenSigner{}
	}
	if d.credentialCodec == nil {
		d.credentialCodec = JSONCredentialCodec{}
	}
}

// resolveCredentialStore builds the store from the repository factory when
// one was supplied without an explicit store.
func (s *setup) resolveCredentialStore() error {
	if s.credentialStore != nil || s.repositoryFactory == nil {
		return nil
	}
	switch factory := s.repositoryFactory.(type) {
	case CredentialStoreFactory:
		store, err := factory.BuildCredentialStore(s.persistenceClient)
		if err != nil {
			return err
		}
		s.credentialStore = store
	case interface{ CredentialStore() CredentialStore }:
		s.credentialStore = factory.CredentialStore()
	}
	return nil
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}
