package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mastodon/providers/mastodon"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MarkerSnapshotStore keeps the latest marker per connection and timeline.
// An older server version never replaces a newer one.
type MarkerSnapshotStore struct {
	db   *bun.DB
	repo repository.Repository[*markerSnapshotRecord]
}

func NewMarkerSnapshotStore(db *bun.DB) (*MarkerSnapshotStore, error) {
	repo, err := newRepository(db, "marker snapshot", func() *markerSnapshotRecord { return &markerSnapshotRecord{} })
	if err != nil {
		return nil, err
	}
	return &MarkerSnapshotStore{db: db, repo: repo}, nil
}

func (s *MarkerSnapshotStore) Record(ctx context.Context, snapshots []mastodon.MarkerSnapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: marker snapshot store is not configured")
	}
	if len(snapshots) == 0 {
		return nil
	}
	for _, snapshot := range snapshots {
		if strings.TrimSpace(snapshot.ConnectionID) == "" {
			return fmt.Errorf("sqlstore: marker snapshot connection id is required")
		}
		if _, err := mastodon.ParseTimeline(string(snapshot.Timeline)); err != nil {
			return err
		}
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, snapshot := range snapshots {
			if err := upsertMarkerSnapshotTx(ctx, tx, snapshot); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MarkerSnapshotStore) Latest(ctx context.Context, connectionID string) ([]mastodon.MarkerSnapshot, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: marker snapshot store is not configured")
	}
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil, fmt.Errorf("sqlstore: connection id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("connection_id", "=", connectionID),
		repository.OrderBy("timeline ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]mastodon.MarkerSnapshot, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func upsertMarkerSnapshotTx(ctx context.Context, tx bun.Tx, snapshot mastodon.MarkerSnapshot) error {
	connectionID := strings.TrimSpace(snapshot.ConnectionID)
	recordedAt := snapshot.RecordedAt.UTC()
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	existing := &markerSnapshotRecord{}
	err := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.connection_id = ?", connectionID).
		Where("?TableAlias.timeline = ?", string(snapshot.Timeline)).
		Limit(1).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		record := &markerSnapshotRecord{
			ID:              uuid.NewString(),
			ConnectionID:    connectionID,
			Timeline:        string(snapshot.Timeline),
			LastReadID:      snapshot.LastReadID,
			Version:         snapshot.Version,
			ServerUpdatedAt: snapshot.UpdatedAt,
			RecordedAt:      recordedAt,
			CreatedAt:       recordedAt,
			UpdatedAt:       recordedAt,
		}
		_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
		return insertErr
	}

	if snapshot.Version < existing.Version {
		return nil
	}
	existing.LastReadID = snapshot.LastReadID
	existing.Version = snapshot.Version
	existing.ServerUpdatedAt = snapshot.UpdatedAt
	existing.RecordedAt = recordedAt
	existing.UpdatedAt = recordedAt
	_, err = tx.NewUpdate().
		Model(existing).
		Where("id = ?", existing.ID).
		Exec(ctx)
	return err
}

