package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-mastodon/providers/mastodon"
)

var (
	_ gocmd.Commander[SaveCredentialMessage]   = (*SaveCredentialCommand)(nil)
	_ gocmd.Commander[RevokeCredentialMessage] = (*RevokeCredentialCommand)(nil)
	_ gocmd.Commander[SaveMarkersMessage]      = (*SaveMarkersCommand)(nil)

	_ MutatingService = (*mastodon.Client)(nil)
)
