package mastodon

import (
	"fmt"

	mastodoncommand "github.com/goliatone/go-mastodon/command"
	mastodonquery "github.com/goliatone/go-mastodon/query"
)

// CommandQueryService is satisfied by *providers/mastodon.Client.
type CommandQueryService interface {
	mastodoncommand.MutatingService
	mastodonquery.Reader
}

type Commands struct {
	SaveCredential   *mastodoncommand.SaveCredentialCommand
	RevokeCredential *mastodoncommand.RevokeCredentialCommand
	SaveMarkers      *mastodoncommand.SaveMarkersCommand
}

type Queries struct {
	VerifyCredential *mastodonquery.VerifyCredentialQuery
	GetMarkers       *mastodonquery.GetMarkersQuery
	MarkerSnapshot   *mastodonquery.MarkerSnapshotQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	snapshotReader mastodonquery.MarkerSnapshotReader
}

// WithSnapshotReader serves MarkerSnapshot from reader instead of the service.
func WithSnapshotReader(reader mastodonquery.MarkerSnapshotReader) FacadeOption {
	return func(options *facadeOptions) {
		options.snapshotReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("mastodon: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	snapshots := cfg.snapshotReader
	if snapshots == nil {
		snapshots = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SaveCredential:   mastodoncommand.NewSaveCredentialCommand(service),
		RevokeCredential: mastodoncommand.NewRevokeCredentialCommand(service),
		SaveMarkers:      mastodoncommand.NewSaveMarkersCommand(service),
	}
	facade.queries = Queries{
		VerifyCredential: mastodonquery.NewVerifyCredentialQuery(service),
		GetMarkers:       mastodonquery.NewGetMarkersQuery(service),
		MarkerSnapshot:   mastodonquery.NewMarkerSnapshotQuery(snapshots),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
