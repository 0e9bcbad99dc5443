package accounts

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

const migrationsDir = "data/sql/migrations"

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// ApplyMigrations runs the embedded up migrations in lexical order. Host
// applications with their own migration tooling can read GetMigrationsFS
// instead; this is the direct path used by tests and simple deployments.
func ApplyMigrations(ctx context.Context, db bun.IDB) error {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to read embedded migrations")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		blob, err := fs.ReadFile(migrationsFS, path.Join(migrationsDir, name))
		if err != nil {
			return errors.Wrap(err, errors.CategoryOperation, "failed to read migration").
				WithMetadata(map[string]any{"migration": name})
		}

		for _, stmt := range strings.Split(string(blob), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return errors.Wrap(err, errors.CategoryOperation, "migration failed").
					WithMetadata(map[string]any{"migration": name})
			}
		}
	}

	return nil
}
