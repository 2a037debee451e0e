package query

import (
	"context"

	"github.com/goliatone/go-mastodon/providers/mastodon"
)

type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, ref mastodon.ConnectionRef) (mastodon.Account, error)
}

type MarkersReader interface {
	GetMarkers(ctx context.Context, ref mastodon.ConnectionRef, timelines ...mastodon.Timeline) (mastodon.MarkersResponse, error)
}

type MarkerSnapshotReader interface {
	LatestSnapshot(ctx context.Context, connectionID string) (mastodon.MarkersResponse, error)
}

// Reader is satisfied by *mastodon.Client.
type Reader interface {
	CredentialVerifier
	MarkersReader
	MarkerSnapshotReader
}

type VerifyCredentialQuery struct {
	verifier CredentialVerifier
}

func NewVerifyCredentialQuery(verifier CredentialVerifier) *VerifyCredentialQuery {
	return &VerifyCredentialQuery{verifier: verifier}
}

func (q *VerifyCredentialQuery) Query(ctx context.Context, msg VerifyCredentialMessage) (mastodon.Account, error) {
	if q == nil || q.verifier == nil {
		return mastodon.Account{}, queryDependencyError("query: credential verifier is required")
	}
	return q.verifier.VerifyCredentials(ctx, msg.Connection)
}

type GetMarkersQuery struct {
	reader MarkersReader
}

func NewGetMarkersQuery(reader MarkersReader) *GetMarkersQuery {
	return &GetMarkersQuery{reader: reader}
}

func (q *GetMarkersQuery) Query(ctx context.Context, msg GetMarkersMessage) (mastodon.MarkersResponse, error) {
	if q == nil || q.reader == nil {
		return mastodon.MarkersResponse{}, queryDependencyError("query: markers reader is required")
	}
	return q.reader.GetMarkers(ctx, msg.Connection, msg.Timelines...)
}

type MarkerSnapshotQuery struct {
	reader MarkerSnapshotReader
}

func NewMarkerSnapshotQuery(reader MarkerSnapshotReader) *MarkerSnapshotQuery {
	return &MarkerSnapshotQuery{reader: reader}
}

func (q *MarkerSnapshotQuery) Query(ctx context.Context, msg MarkerSnapshotMessage) (mastodon.MarkersResponse, error) {
	if q == nil || q.reader == nil {
		return mastodon.MarkersResponse{}, queryDependencyError("query: marker snapshot reader is required")
	}
	return q.reader.LatestSnapshot(ctx, msg.ConnectionID)
}
