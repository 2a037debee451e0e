package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-mastodon/providers/mastodon"
)

var (
	_ gocmd.Querier[VerifyCredentialMessage, mastodon.Account]       = (*VerifyCredentialQuery)(nil)
	_ gocmd.Querier[GetMarkersMessage, mastodon.MarkersResponse]     = (*GetMarkersQuery)(nil)
	_ gocmd.Querier[MarkerSnapshotMessage, mastodon.MarkersResponse] = (*MarkerSnapshotQuery)(nil)

	_ Reader = (*mastodon.Client)(nil)
)
