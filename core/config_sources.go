package core

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// OptionsResolver merges the default, loaded and runtime configs into the one
// a Service runs with.
type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticConfig map[string]any

// NewStaticConfigLoader serves a fixed raw config map, mostly for tests and
// embedding hosts that already parsed their configuration.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticConfig(values)
}

func (c staticConfig) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(c))
	maps.Copy(out, c)
	return out, nil
}

// YAMLFileConfigLoader reads raw configuration from a YAML document. An
// optional Section selects a nested key, e.g. "mastodon".
type YAMLFileConfigLoader struct {
	Path    string
	Section string
}

func (l YAMLFileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return nil, fmt.Errorf("core: config file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("core: read config file: %w", err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("core: decode config file: %w", err)
	}
	if section := strings.TrimSpace(l.Section); section != "" {
		nested, _ := doc[section].(map[string]any)
		if nested == nil {
			nested = map[string]any{}
		}
		return nested, nil
	}
	return doc, nil
}

// CfgxConfigProvider decodes a raw map onto the defaults with cfgx and
// validates the result.
type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	var raw map[string]any
	if p.Loader != nil {
		loaded, err := p.Loader.LoadRaw(ctx)
		if err != nil {
			return Config{}, err
		}
		raw = loaded
	}
	return buildConfig(raw, defaults)
}

func buildConfig(raw map[string]any, defaults Config) (Config, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// GoOptionsResolver layers defaults < config < runtime with go-options. Zero
// values in the upper layers do not override lower ones.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("defaults", 0), defaults.layer(true), opts.WithSnapshotID[map[string]any]("defaults")),
		opts.NewLayer(opts.NewScope("config", 10), loaded.layer(false), opts.WithSnapshotID[map[string]any]("config")),
		opts.NewLayer(opts.NewScope("runtime", 20), runtime.layer(false), opts.WithSnapshotID[map[string]any]("runtime")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	return buildConfig(merged.Value, defaults)
}

// layer renders c as an options layer. With all unset, zero-valued fields
// are left out so they fall through to lower layers.
func (c Config) layer(all bool) map[string]any {
	out := map[string]any{}
	set := func(dst map[string]any, key string, value any, present bool) {
		if all || present {
			dst[key] = value
		}
	}
	set(out, "service_name", c.ServiceName, strings.TrimSpace(c.ServiceName) != "")
	set(out, "user_agent", c.UserAgent, strings.TrimSpace(c.UserAgent) != "")
	set(out, "request_timeout", c.RequestTimeout, c.RequestTimeout > 0)

	retry := map[string]any{}
	set(retry, "max_attempts", c.Retry.MaxAttempts, c.Retry.MaxAttempts > 0)
	set(retry, "initial_backoff", c.Retry.InitialBackoff, c.Retry.InitialBackoff > 0)
	set(retry, "max_backoff", c.Retry.MaxBackoff, c.Retry.MaxBackoff > 0)
	set(retry, "default_retry_after", c.Retry.DefaultRetryAfter, c.Retry.DefaultRetryAfter > 0)
	set(retry, "max_retry_wait", c.Retry.MaxRetryWait, c.Retry.MaxRetryWait > 0)

	rateLimit := map[string]any{}
	set(rateLimit, "low_remaining_threshold", c.RateLimit.LowRemainingThreshold, c.RateLimit.LowRemainingThreshold > 0)

	cache := map[string]any{}
	set(cache, "enabled", c.Cache.Enabled, c.Cache.Enabled)
	set(cache, "ttl", c.Cache.TTL, c.Cache.TTL > 0)

	for key, nested := range map[string]map[string]any{"retry": retry, "rate_limit": rateLimit, "cache": cache} {
		if len(nested) > 0 {
			out[key] = nested
		}
	}
	return out
}
