package mastodon

import (
	"github.com/goliatone/go-mastodon/core"
	provider "github.com/goliatone/go-mastodon/providers/mastodon"
)

// MastodonProvider returns the token-authenticated Mastodon provider.
func MastodonProvider() core.Provider {
	return provider.New()
}

// NewClient sets up a service for cfg and wraps it in a markers client.
func NewClient(cfg Config, serviceOpts []Option, clientOpts ...provider.ClientOption) (*provider.Client, error) {
	service, err := Setup(cfg, serviceOpts...)
	if err != nil {
		return nil, err
	}
	return provider.NewClient(service, clientOpts...)
}
