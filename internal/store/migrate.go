// Copyright (c) 2025 Berik Ashimov

package store

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migFS embed.FS

var ErrSchemaTooNew = errors.New("store: database schema is newer than this binary")

// migration is one embedded schema step.
type migration struct {
	version int
	file    string
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, in version order.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}
	steps, err := embeddedMigrations()
	if err != nil {
		return err
	}
	current, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	if latest := steps[len(steps)-1].version; current > latest {
		return errors.Wrapf(ErrSchemaTooNew, "database %d, binary %d", current, latest)
	}
	for _, m := range steps {
		if m.version <= current {
			continue
		}
		if err := s.apply(m); err != nil {
			return errors.Wrapf(err, "migration %s", m.file)
		}
		s.log.WithField("version", m.version).Info("migration applied")
	}
	return nil
}

// SchemaVersion is the highest applied migration, 0 for a fresh database.
func (s *Store) SchemaVersion() (int, error) {
	var value sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&value); err != nil {
		return 0, err
	}
	return int(value.Int64), nil
}

// apply runs one migration and records it in the same transaction.
// Statements are split on semicolons, so a migration must not carry one
// inside a literal.
func (s *Store) apply(m migration) error {
	body, err := migFS.ReadFile(m.file)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range strings.Split(string(body), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`,
		m.version, s.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

// embeddedMigrations lists the migrations shipped in the binary ordered by
// version. Two files with one version are rejected.
func embeddedMigrations() ([]migration, error) {
	entries, err := migFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var out []migration
	seen := map[int]string{}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		file := path.Join("migrations", entry.Name())
		version, err := migrationVersion(file)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, errors.Errorf("migrations %s and %s share version %d", prev, file, version)
		}
		seen[version] = file
		out = append(out, migration{version: version, file: file})
	}
	if len(out) == 0 {
		return nil, errors.New("no embedded migrations")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// migrationVersion reads the leading digits of a migration file name.
func migrationVersion(file string) (int, error) {
	base := strings.TrimSuffix(path.Base(file), path.Ext(file))
	end := strings.IndexFunc(base, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(base)
	}
	if end == 0 {
		return 0, errors.Errorf("invalid migration name: %s", file)
	}
	version, err := strconv.Atoi(base[:end])
	if err != nil {
		return 0, errors.Errorf("invalid migration version: %s", file)
	}
	return version, nil
}
