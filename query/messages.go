package query

import (
	"strings"

	"github.com/goliatone/go-mastodon/providers/mastodon"
)

const (
	TypeVerifyCredential = "mastodon.query.credential.verify"
	TypeGetMarkers       = "mastodon.query.markers.get"
	TypeMarkerSnapshot   = "mastodon.query.markers.snapshot"
)

type VerifyCredentialMessage struct {
	Connection mastodon.ConnectionRef
}

func (VerifyCredentialMessage) Type() string { return TypeVerifyCredential }

func (m VerifyCredentialMessage) Validate() error {
	return validateConnection(m.Connection)
}

type GetMarkersMessage struct {
	Connection mastodon.ConnectionRef
	// Timelines defaults to home and notifications when empty.
	Timelines []mastodon.Timeline
}

func (GetMarkersMessage) Type() string { return TypeGetMarkers }

func (m GetMarkersMessage) Validate() error {
	if err := validateConnection(m.Connection); err != nil {
		return err
	}
	for _, timeline := range m.Timelines {
		if _, err := mastodon.ParseTimeline(string(timeline)); err != nil {
			return queryWrapValidation(err, "query: invalid timeline")
		}
	}
	return nil
}

type MarkerSnapshotMessage struct {
	ConnectionID string
}

func (MarkerSnapshotMessage) Type() string { return TypeMarkerSnapshot }

func (m MarkerSnapshotMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return queryValidationError("connection_id", "connection id is required")
	}
	return nil
}

func validateConnection(ref mastodon.ConnectionRef) error {
	if ref.Credential != nil {
		if err := ref.Credential.WithDefaults().Validate(); err != nil {
			return queryWrapValidation(err, "query: invalid mastodon credential")
		}
		return nil
	}
	if strings.TrimSpace(ref.ConnectionID) == "" {
		return queryValidationError("connection_id", "connection id or credential is required")
	}
	return nil
}
