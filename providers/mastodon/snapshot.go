package mastodon

import (
	"context"
	"strings"
	"time"
)

// MarkerSnapshot is one recorded marker position for a stored connection.
type MarkerSnapshot struct {
	ConnectionID string
	Timeline     Timeline
	LastReadID   string
	Version      int
	UpdatedAt    string
	RecordedAt   time.Time
}

// MarkerSnapshotStore keeps the last known marker per connection and
// timeline.
type MarkerSnapshotStore interface {
	Record(ctx context.Context, snapshots []MarkerSnapshot) error
	Latest(ctx context.Context, connectionID string) ([]MarkerSnapshot, error)
}

// SnapshotsFromResponse lists the markers present in res.
func SnapshotsFromResponse(connectionID string, res MarkersResponse, recordedAt time.Time) []MarkerSnapshot {
	connectionID = strings.TrimSpace(connectionID)
	snapshots := make([]MarkerSnapshot, 0, 2)
	for _, timeline := range Timelines() {
		marker, ok := res.Get(timeline)
		if !ok {
			continue
		}
		snapshots = append(snapshots, MarkerSnapshot{
			ConnectionID: connectionID,
			Timeline:     timeline,
			LastReadID:   marker.LastReadID,
			Version:      marker.Version,
			UpdatedAt:    marker.UpdatedAt,
			RecordedAt:   recordedAt.UTC(),
		})
	}
	return snapshots
}

// ResponseFromSnapshots rebuilds a MarkersResponse from stored snapshots.
func ResponseFromSnapshots(snapshots []MarkerSnapshot) MarkersResponse {
	res := MarkersResponse{}
	for _, snapshot := range snapshots {
		marker := &Marker{
			LastReadID: snapshot.LastReadID,
			Version:    snapshot.Version,
			UpdatedAt:  snapshot.UpdatedAt,
		}
		switch snapshot.Timeline {
		case TimelineHome:
			res.Home = marker
		case TimelineNotifications:
			res.Notifications = marker
		}
	}
	return res
}
