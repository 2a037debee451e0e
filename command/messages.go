package command

import (
	"strings"

	"github.com/goliatone/go-mastodon/providers/mastodon"
)

const (
	TypeSaveCredential   = "mastodon.command.credential.save"
	TypeRevokeCredential = "mastodon.command.credential.revoke"
	TypeSaveMarkers      = "mastodon.command.markers.save"
)

type SaveCredentialMessage struct {
	ConnectionID string
	Credential   mastodon.TokenCredential
}

func (SaveCredentialMessage) Type() string { return TypeSaveCredential }

func (m SaveCredentialMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return commandValidationError("connection_id", "connection id is required")
	}
	if err := m.Credential.WithDefaults().Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid mastodon credential")
	}
	return nil
}

type RevokeCredentialMessage struct {
	ConnectionID string
	Reason       string
}

func (RevokeCredentialMessage) Type() string { return TypeRevokeCredential }

func (m RevokeCredentialMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return commandValidationError("connection_id", "connection id is required")
	}
	return nil
}

type SaveMarkersMessage struct {
	Connection mastodon.ConnectionRef
	Update     mastodon.MarkerUpdateRequest
}

func (SaveMarkersMessage) Type() string { return TypeSaveMarkers }

func (m SaveMarkersMessage) Validate() error {
	if err := validateConnection(m.Connection); err != nil {
		return err
	}
	if m.Update.IsEmpty() {
		return commandValidationError("update", "at least one timeline marker is required")
	}
	return nil
}

func validateConnection(ref mastodon.ConnectionRef) error {
	if ref.Credential != nil {
		if err := ref.Credential.WithDefaults().Validate(); err != nil {
			return commandWrapValidation(err, "command: invalid mastodon credential")
		}
		return nil
	}
	if strings.TrimSpace(ref.ConnectionID) == "" {
		return commandValidationError("connection_id", "connection id or credential is required")
	}
	return nil
}
