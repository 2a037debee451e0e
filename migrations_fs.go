package mastodon

import (
	"embed"
	"io/fs"
)

// migrationsFS contains the go-mastodon SQL migration tree, including
// dialect alternatives under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the full embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// GetCoreMigrationsFS returns the credential, marker snapshot and rate-limit
// schema. It is the same tree as GetMigrationsFS today.
func GetCoreMigrationsFS() fs.FS {
	return migrationsFS
}
