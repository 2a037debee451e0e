package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/providers/mastodon"
	"github.com/goliatone/go-mastodon/ratelimit"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL stores from one bun database. It can be
// passed to core.WithRepositoryFactory, in which case the persistence client
// given to core.WithPersistenceClient supplies the database.
type RepositoryFactory struct {
	db *bun.DB

	credentials *CredentialStore
	markers     *MarkerSnapshotStore
	rateLimits  *RateLimitStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	return newBuiltFactory(client)
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	return newBuiltFactory(db)
}

func newBuiltFactory(client any) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildCredentialStore(persistenceClient any) (core.CredentialStore, error) {
	if err := f.build(persistenceClient); err != nil {
		return nil, err
	}
	return f.credentials, nil
}

// build is idempotent; a factory already holding a database ignores client.
func (f *RepositoryFactory) build(client any) (err error) {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		if f.db, err = bunDB(client); err != nil {
			return err
		}
	}
	if f.credentials == nil {
		if f.credentials, err = NewCredentialStore(f.db); err != nil {
			return err
		}
	}
	if f.markers == nil {
		if f.markers, err = NewMarkerSnapshotStore(f.db); err != nil {
			return err
		}
	}
	if f.rateLimits == nil {
		if f.rateLimits, err = NewRateLimitStateStore(f.db); err != nil {
			return err
		}
	}
	return nil
}

// The accessors return untyped nil before build so callers can compare the
// interface values against nil.

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil || f.credentials == nil {
		return nil
	}
	return f.credentials
}

func (f *RepositoryFactory) MarkerSnapshotStore() mastodon.MarkerSnapshotStore {
	if f == nil || f.markers == nil {
		return nil
	}
	return f.markers
}

func (f *RepositoryFactory) RateLimitStateStore() ratelimit.StateStore {
	if f == nil || f.rateLimits == nil {
		return nil
	}
	return f.rateLimits
}

// CachedRateLimitStateStore wraps the SQL rate-limit store with a read
// cache invalidated on every write.
func (f *RepositoryFactory) CachedRateLimitStateStore(cacheService repositorycache.CacheService) (ratelimit.StateStore, error) {
	if f == nil || f.rateLimits == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not built")
	}
	return NewCachedRateLimitStateStore(f.rateLimits, cacheService)
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func bunDB(client any) (*bun.DB, error) {
	switch typed := client.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		if db := typed.DB(); db != nil {
			return db, nil
		}
		return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", client)
	}
}
