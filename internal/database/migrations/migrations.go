// Package migrations applies the versioned schema files embedded in the binary.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Files holds the schema migrations shipped with the binary.
//
//go:embed sql/*.sql
var Files embed.FS

const versionTable = "schema_migrations"

// Migration is one schema version with its forward and reverse SQL.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Embedded loads the migrations compiled into the binary.
func Embedded() ([]Migration, error) {
	return LoadMigrations(Files, "sql")
}

// LoadMigrations reads NNNN_name.up.sql and NNNN_name.down.sql pairs from dir.
// A version without an up file is an error; other .sql names are skipped.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseFileName(entry.Name())
		if !ok {
			log.Warn().Str("file", entry.Name()).Msg("Skipping invalid migration file")
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.Up) == "" {
			return nil, fmt.Errorf("migration %04d_%s has no up script", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	log.Debug().Int("count", len(out)).Msg("Loaded migrations")
	return out, nil
}

// parseFileName splits "0001_init.up.sql" into 1, "init", true.
func parseFileName(file string) (version int, name string, up, ok bool) {
	base, found := strings.CutSuffix(file, ".sql")
	if !found {
		return 0, "", false, false
	}
	switch {
	case strings.HasSuffix(base, ".up"):
		base, up = strings.TrimSuffix(base, ".up"), true
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return 0, "", false, false
	}
	num, name, found := strings.Cut(base, "_")
	if !found || name == "" {
		return 0, "", false, false
	}
	version, err := strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", false, false
	}
	return version, name, up, true
}

// RunMigrations applies every migration not yet recorded in schema_migrations,
// each in its own transaction.
func RunMigrations(db *sqlx.DB, migrations []Migration) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(db, "ASC", -1)
	if err != nil {
		return err
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			log.Debug().Int("version", m.Version).Msg("Migration already applied, skipping")
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Running migration")

		record := "INSERT INTO " + versionTable + " (version) VALUES (?)"
		if err := apply(db, m.Version, m.Up, record); err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// RollbackMigrations reverts the last n applied migrations, newest first.
// Versions without a down script are skipped and stay recorded.
func RollbackMigrations(db *sqlx.DB, migrations []Migration, n int) error {
	versions, err := appliedVersions(db, "DESC", n)
	if err != nil {
		return err
	}

	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	for _, version := range versions {
		m, ok := byVersion[version]
		if !ok || m.Down == "" {
			log.Warn().Int("version", version).Msg("No down migration found, skipping")
			continue
		}
		log.Info().Int("version", version).Msg("Rolling back migration")

		record := "DELETE FROM " + versionTable + " WHERE version = ?"
		if err := apply(db, version, m.Down, record); err != nil {
			return fmt.Errorf("rollback %d: %w", version, err)
		}
	}
	return nil
}

func appliedVersions(db *sqlx.DB, order string, limit int) ([]int, error) {
	q := "SELECT version FROM " + versionTable + " ORDER BY version " + order
	var args []any
	if limit >= 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	var versions []int
	if err := db.Select(&versions, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	return versions, nil
}

// apply runs script and the bookkeeping statement in one transaction.
func apply(db *sqlx.DB, version int, script, record string) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(script); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute script: %w", err)
	}
	if _, err := tx.Exec(tx.Rebind(record), version); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update %s: %w", versionTable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	log.Info().Int("version", version).Msg("Migration step completed")
	return nil
}
