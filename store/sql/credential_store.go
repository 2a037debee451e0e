package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mastodon/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

var errCredentialStoreNotConfigured = fmt.Errorf("sqlstore: credential store is not configured")

// CredentialStore keeps versioned, encrypted credentials. At most one version
// per connection is active.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	repo, err := newRepository(db, "credential", func() *credentialRecord { return &credentialRecord{} })
	if err != nil {
		return nil, err
	}
	return &CredentialStore{db: db, repo: repo}, nil
}

// SaveNewVersion appends version max+1 for the connection. Saving an active
// version revokes the previous active one in the same transaction.
func (s *CredentialStore) SaveNewVersion(ctx context.Context, in core.SaveCredentialInput) (core.Credential, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Credential{}, errCredentialStoreNotConfigured
	}
	if in.ConnectionID = strings.TrimSpace(in.ConnectionID); in.ConnectionID == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: connection id is required")
	}
	if len(in.EncryptedPayload) == 0 {
		return core.Credential{}, fmt.Errorf("sqlstore: encrypted payload is required")
	}
	if strings.TrimSpace(string(in.Status)) == "" {
		in.Status = core.CredentialStatusActive
	}
	now := time.Now().UTC()

	var saved core.Credential
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		version, err := latestVersion(ctx, tx, in.ConnectionID)
		if err != nil {
			return err
		}
		if in.Status == core.CredentialStatusActive {
			if err := revokeActive(ctx, tx, in.ConnectionID, "rotated", now); err != nil {
				return err
			}
		}
		created, err := s.repo.CreateTx(ctx, tx, newCredentialRecord(in, version+1, now))
		if err != nil {
			return err
		}
		saved = created.toDomain()
		return nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	return saved, nil
}

func (s *CredentialStore) GetActiveByConnection(ctx context.Context, connectionID string) (core.Credential, error) {
	records, err := s.list(ctx, connectionID,
		repository.SelectBy("status", "=", string(core.CredentialStatusActive)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, fmt.Errorf("%w: connection %q", core.ErrCredentialNotFound, connectionID)
	}
	return records[0], nil
}

func (s *CredentialStore) RevokeActive(ctx context.Context, connectionID string, reason string) error {
	if s == nil || s.db == nil {
		return errCredentialStoreNotConfigured
	}
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return fmt.Errorf("sqlstore: connection id is required")
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "revoked"
	}
	return revokeActive(ctx, s.db, connectionID, reason, time.Now().UTC())
}

// ListVersions returns every stored version for connectionID, newest first.
func (s *CredentialStore) ListVersions(ctx context.Context, connectionID string) ([]core.Credential, error) {
	return s.list(ctx, connectionID)
}

func (s *CredentialStore) list(ctx context.Context, connectionID string, criteria ...repository.SelectCriteria) ([]core.Credential, error) {
	if s == nil || s.repo == nil {
		return nil, errCredentialStoreNotConfigured
	}
	criteria = append([]repository.SelectCriteria{
		repository.SelectBy("connection_id", "=", strings.TrimSpace(connectionID)),
		repository.OrderBy("version DESC"),
	}, criteria...)
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Credential, len(records))
	for i, record := range records {
		out[i] = record.toDomain()
	}
	return out, nil
}

func revokeActive(ctx context.Context, db bun.IDB, connectionID, reason string, at time.Time) error {
	_, err := db.NewUpdate().
		Model((*credentialRecord)(nil)).
		Set("status = ?", string(core.CredentialStatusRevoked)).
		Set("revocation_reason = ?", reason).
		Set("updated_at = ?", at).
		Where("connection_id = ?", connectionID).
		Where("status = ?", string(core.CredentialStatusActive)).
		Exec(ctx)
	return err
}

func latestVersion(ctx context.Context, tx bun.Tx, connectionID string) (int, error) {
	var version int
	err := tx.NewSelect().
		Model((*credentialRecord)(nil)).
		ColumnExpr("COALESCE(MAX(version), 0)").
		Where("?TableAlias.connection_id = ?", connectionID).
		Scan(ctx, &version)
	return version, err
}
