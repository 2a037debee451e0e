package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrProviderNotFound = errors.New("core: provider not registered")
	ErrNoTransport      = errors.New("core: transport adapter is not configured")
)

type Service struct {
	config Config
	dependencies
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	var pending setup
	for _, opt := range opts {
		if opt != nil {
			opt(&pending)
		}
	}
	pending.fillDefaults()

	provider, logger := glog.Resolve("mastodon", pending.loggerProvider, pending.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("mastodon"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	pending.logger, pending.loggerProvider = logger, provider

	defaults := DefaultConfig()
	loaded, err := pending.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(pending.errorMapper, err)
	}
	resolved, err := pending.optionsResolver.Resolve(defaults, loaded, cfg)
	if err != nil {
		return nil, mapBuildError(pending.errorMapper, err)
	}
	if err := pending.resolveCredentialStore(); err != nil {
		return nil, mapBuildError(pending.errorMapper, err)
	}
	return &Service{config: resolved, dependencies: pending.dependencies}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) LoggerProvider() LoggerProvider {
	if s == nil {
		return nil
	}
	return s.loggerProvider
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) RegisterProvider(provider Provider) error {
	if s == nil || s.registry == nil {
		return fmt.Errorf("core: provider registry is not configured")
	}
	return s.mapError(s.registry.Register(provider))
}

func (s *Service) resolveProvider(providerID string) (Provider, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: provider registry is not configured"))
	}
	id := strings.TrimSpace(providerID)
	if id == "" {
		return nil, s.mapError(fmt.Errorf("core: provider id is required"))
	}
	provider, ok := s.registry.Get(id)
	if !ok {
		return nil, s.mapError(fmt.Errorf("%w: %s", ErrProviderNotFound, id))
	}
	return provider, nil
}

func (s *Service) mapError(err error) error {
	if s == nil {
		return err
	}
	return mapBuildError(s.errorMapper, err)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
