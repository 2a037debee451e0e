package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/providers/mastodon"
)

type CredentialService interface {
	SaveCredential(ctx context.Context, connectionID string, cred mastodon.TokenCredential) (core.Credential, error)
	RevokeCredential(ctx context.Context, connectionID string, reason string) error
}

type MarkersWriter interface {
	SaveMarkers(ctx context.Context, ref mastodon.ConnectionRef, update mastodon.MarkerUpdateRequest) (mastodon.MarkersResponse, error)
}

// MutatingService is satisfied by *mastodon.Client.
type MutatingService interface {
	CredentialService
	MarkersWriter
}

type SaveCredentialCommand struct {
	service CredentialService
}

func NewSaveCredentialCommand(service CredentialService) *SaveCredentialCommand {
	return &SaveCredentialCommand{service: service}
}

func (c *SaveCredentialCommand) Execute(ctx context.Context, msg SaveCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	out, err := c.service.SaveCredential(ctx, msg.ConnectionID, msg.Credential)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RevokeCredentialCommand struct {
	service CredentialService
}

func NewRevokeCredentialCommand(service CredentialService) *RevokeCredentialCommand {
	return &RevokeCredentialCommand{service: service}
}

func (c *RevokeCredentialCommand) Execute(ctx context.Context, msg RevokeCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	return c.service.RevokeCredential(ctx, msg.ConnectionID, msg.Reason)
}

type SaveMarkersCommand struct {
	writer MarkersWriter
}

func NewSaveMarkersCommand(writer MarkersWriter) *SaveMarkersCommand {
	return &SaveMarkersCommand{writer: writer}
}

func (c *SaveMarkersCommand) Execute(ctx context.Context, msg SaveMarkersMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: markers writer is required")
	}
	out, err := c.writer.SaveMarkers(ctx, msg.Connection, msg.Update)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
