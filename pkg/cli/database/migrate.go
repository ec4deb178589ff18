/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"embed"
	"io/fs"
	"strings"

	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationTable = "schema_migrations"

// validateMigrationFilename checks if filename follows format: NNN-description.sql
func validateMigrationFilename(name string) error {
	if !strings.HasSuffix(name, ".sql") {
		return errors.Errorf("invalid migration filename %s: must end with .sql", name)
	}

	parts := strings.SplitN(strings.TrimSuffix(name, ".sql"), "-", 2)
	if len(parts) != 2 || parts[1] == "" {
		return errors.Errorf("invalid migration filename %s: must be NNN-description.sql", name)
	}

	version := parts[0]
	if len(version) != 3 {
		return errors.Errorf("invalid migration filename %s: version must be 3 digits", name)
	}
	for _, c := range version {
		if c < '0' || c > '9' {
			return errors.Errorf("invalid migration filename %s: version must be numeric", name)
		}
	}

	return nil
}

func validateMigrations(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return errors.Wrap(err, "reading migration directory")
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if err := validateMigrationFilename(name); err != nil {
			return err
		}

		version := name[:3]
		if existing, ok := seen[version]; ok {
			return errors.Errorf("duplicate migration version %s: %s and %s", version, existing, name)
		}
		seen[version] = name
	}

	return nil
}

// Migrate brings the schema up to date and returns the number of migrations
// applied
func Migrate(db *DB) (int, error) {
	if err := validateMigrations(migrationFiles, "migrations"); err != nil {
		return 0, errors.Wrap(err, "validating migrations")
	}

	src := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}
	set := migrate.MigrationSet{TableName: migrationTable}

	n, err := set.Exec(db.Conn, "sqlite3", src, migrate.Up)
	if err != nil {
		return n, errors.Wrap(err, "running migrations")
	}

	if n > 0 {
		log.Debug("applied %d migrations\n", n)
	}

	return n, nil
}
