package sqlstore

import (
	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/providers/mastodon"
)

var (
	_ core.CredentialStore         = (*CredentialStore)(nil)
	_ core.CredentialStoreFactory  = (*RepositoryFactory)(nil)
	_ mastodon.MarkerSnapshotStore = (*MarkerSnapshotStore)(nil)
)
