package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	mastodoncommand "github.com/goliatone/go-mastodon/command"
	mastodonquery "github.com/goliatone/go-mastodon/query"
)

// Handlers bundles the subscriptions created by RegisterHandlers.
type Handlers struct {
	subscriptions []commanddispatcher.Subscription
}

func (h *Handlers) Unsubscribe() {
	if h == nil {
		return
	}
	for _, subscription := range h.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	h.subscriptions = nil
}

func (h *Handlers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.subscriptions)
}

// RegisterHandlers registers and subscribes every credential and markers
// command and query against the given service and reader. A
// *mastodon.Client satisfies both.
func RegisterHandlers(
	adapter *RegistryAdapter,
	service mastodoncommand.MutatingService,
	reader mastodonquery.Reader,
	runnerOpts ...runner.Option,
) (*Handlers, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: mutating service is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("gocommand: reader is required")
	}

	handlers := &Handlers{}
	register := func(subscribe func() (commanddispatcher.Subscription, error)) error {
		subscription, err := subscribe()
		if err != nil {
			handlers.Unsubscribe()
			return err
		}
		handlers.subscriptions = append(handlers.subscriptions, subscription)
		return nil
	}

	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, mastodoncommand.NewSaveCredentialCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, mastodoncommand.NewRevokeCredentialCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, mastodoncommand.NewSaveMarkersCommand(service), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, mastodonquery.NewVerifyCredentialQuery(reader), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, mastodonquery.NewGetMarkersQuery(reader), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, mastodonquery.NewMarkerSnapshotQuery(reader), runnerOpts...)
		},
	}
	for _, step := range steps {
		if err := register(step); err != nil {
			return nil, err
		}
	}
	return handlers, nil
}
