package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

type failingConfigProvider struct{}

func (failingConfigProvider) Load(context.Context, Config) (Config, error) {
	return Config{}, errors.New("config source invalid")
}

type factoryWithStore struct {
	store  CredentialStore
	client any
}

func (f *factoryWithStore) BuildCredentialStore(client any) (CredentialStore, error) {
	f.client = client
	return f.store, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Logger() == nil {
		t.Fatalf("expected default logger")
	}
	if svc.Registry() == nil {
		t.Fatalf("expected default registry")
	}
	if _, ok := svc.signer.(BearerTokenSigner); !ok {
		t.Fatalf("expected bearer signer by default, got %T", svc.signer)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "mastodon" {
		t.Fatalf("expected default service_name=mastodon, got %q", cfg.ServiceName)
	}
	if cfg.Retry.MaxAttempts != 6 || cfg.Retry.InitialBackoff != 3*time.Second {
		t.Fatalf("unexpected retry defaults %#v", cfg.Retry)
	}
	if cfg.RateLimit.LowRemainingThreshold != 50 {
		t.Fatalf("expected low remaining threshold 50, got %d", cfg.RateLimit.LowRemainingThreshold)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("unexpected cache defaults %#v", cfg.Cache)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{ServiceName: "resolved"}}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Logger() != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := svc.LoggerProvider().GetLogger("mastodon.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}

	mapped := svc.mapError(errors.New("anything"))
	var rich *goerrors.Error
	if !goerrors.As(mapped, &rich) || rich.Message != "mapped" {
		t.Fatalf("expected custom mapper output, got %v", mapped)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticConfigLoader(map[string]any{
		"service_name": "from-config",
		"user_agent":   "custom-agent/1.0",
		"rate_limit": map[string]any{
			"low_remaining_threshold": 10,
		},
	}))

	svc, err := NewService(Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.UserAgent != "custom-agent/1.0" {
		t.Fatalf("expected config layer user agent, got %q", cfg.UserAgent)
	}
	if cfg.RateLimit.LowRemainingThreshold != 10 {
		t.Fatalf("expected config layer threshold, got %d", cfg.RateLimit.LowRemainingThreshold)
	}
}

func TestNewService_MapsConfigProviderFailure(t *testing.T) {
	_, err := NewService(Config{}, WithConfigProvider(failingConfigProvider{}))
	if err == nil {
		t.Fatalf("expected config provider failure")
	}
	if !HasTextCode(err, ServiceErrorBadInput) {
		t.Fatalf("expected bad input text code, got %v", err)
	}
}

func TestNewService_BuildsCredentialStoreFromRepositoryFactory(t *testing.T) {
	store := newMemoryCredentialStore()
	client := &struct{ Name string }{Name: "persistence"}
	factory := &factoryWithStore{store: store}

	svc, err := NewService(Config{},
		WithRepositoryFactory(factory),
		WithPersistenceClient(client),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.credentialStore != store {
		t.Fatalf("expected repository factory store")
	}
	if factory.client != client {
		t.Fatalf("expected persistence client passed to factory")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.InitialBackoff = time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected initial backoff above max backoff to fail")
	}

	cfg = DefaultConfig()
	cfg.ServiceName = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected empty service name to fail")
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
}

func TestYAMLFileConfigLoader_ReadsSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "mastodon:\n  service_name: yaml-service\n  user_agent: yaml-agent\nother:\n  key: value\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	raw, err := YAMLFileConfigLoader{Path: path, Section: "mastodon"}.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if raw["service_name"] != "yaml-service" || raw["user_agent"] != "yaml-agent" {
		t.Fatalf("unexpected section values %#v", raw)
	}
	if _, ok := raw["other"]; ok {
		t.Fatalf("expected only the selected section")
	}

	if _, err := (YAMLFileConfigLoader{}).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected missing path error")
	}
}
