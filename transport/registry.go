package transport

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-mastodon/core"
	"github.com/mitchellh/mapstructure"
)

// AdapterFactory builds an adapter per Build call from untyped config, as
// read from the service's YAML or cfgx layers.
type AdapterFactory func(config map[string]any) (core.TransportAdapter, error)

// Registry resolves transport adapters by kind for core.Service. Fixed
// adapters win over factories registered under the same kind.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]core.TransportAdapter
	factories map[string]AdapterFactory
}

func NewRegistry() *Registry {
	return &Registry{
		adapters:  map[string]core.TransportAdapter{},
		factories: map[string]AdapterFactory{},
	}
}

// NewDefaultRegistry serves KindREST through RESTAdapterFactory.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	_ = registry.RegisterFactory(KindREST, RESTAdapterFactory)
	return registry
}

func (r *Registry) Register(adapter core.TransportAdapter) error {
	if adapter == nil {
		return fmt.Errorf("transport: adapter is nil")
	}
	return r.add(adapter.Kind(), "adapter", func(kind string) bool {
		if _, exists := r.adapters[kind]; exists {
			return false
		}
		r.adapters[kind] = adapter
		return true
	})
}

func (r *Registry) RegisterFactory(kind string, factory AdapterFactory) error {
	if factory == nil {
		return fmt.Errorf("transport: adapter factory is nil")
	}
	return r.add(kind, "adapter factory", func(kind string) bool {
		if _, exists := r.factories[kind]; exists {
			return false
		}
		r.factories[kind] = factory
		return true
	})
}

func (r *Registry) add(kind string, what string, insert func(kind string) bool) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("transport: adapter kind is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !insert(kind) {
		return fmt.Errorf("transport: %s kind %q already registered", what, kind)
	}
	return nil
}

func (r *Registry) Build(kind string, config map[string]any) (core.TransportAdapter, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return nil, fmt.Errorf("transport: adapter kind is required")
	}

	r.mu.RLock()
	adapter, fixed := r.adapters[kind]
	factory := r.factories[kind]
	r.mu.RUnlock()
	switch {
	case fixed:
		return adapter, nil
	case factory == nil:
		return nil, fmt.Errorf("transport: adapter kind %q not registered", kind)
	}

	built, err := factory(maps.Clone(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil adapter", kind)
	}
	return built, nil
}

func (r *Registry) Get(kind string) (core.TransportAdapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[normalizeKind(kind)]
	return adapter, ok
}

// List returns the fixed adapters ordered by kind.
func (r *Registry) List() []core.TransportAdapter {
	if r == nil {
		return []core.TransportAdapter{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]core.TransportAdapter, 0, len(r.adapters))
	for _, kind := range slices.Sorted(maps.Keys(r.adapters)) {
		result = append(result, r.adapters[kind])
	}
	return result
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// RESTConfig is the config accepted by RESTAdapterFactory. Timeout takes a
// duration string such as "10s" or a time.Duration.
type RESTConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxResponseBodyBytes int64         `mapstructure:"max_response_body_bytes"`
	UserAgent            string        `mapstructure:"user_agent"`
}

func DecodeRESTConfig(config map[string]any) (RESTConfig, error) {
	out := RESTConfig{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &out,
	})
	if err != nil {
		return RESTConfig{}, fmt.Errorf("transport: rest config decoder: %w", err)
	}
	if err := decoder.Decode(config); err != nil {
		return RESTConfig{}, fmt.Errorf("transport: invalid rest config: %w", err)
	}
	out.UserAgent = strings.TrimSpace(out.UserAgent)
	if out.Timeout <= 0 {
		out.Timeout = defaultRESTClientTimeout
	}
	return out, nil
}

func RESTAdapterFactory(config map[string]any) (core.TransportAdapter, error) {
	cfg, err := DecodeRESTConfig(config)
	if err != nil {
		return nil, err
	}
	adapter := NewRESTAdapter(&http.Client{Timeout: cfg.Timeout})
	if cfg.MaxResponseBodyBytes > 0 {
		adapter.MaxResponseBodyBytes = cfg.MaxResponseBodyBytes
	}
	if cfg.UserAgent != "" {
		adapter.DefaultHeaders["User-Agent"] = cfg.UserAgent
	}
	return adapter, nil
}
