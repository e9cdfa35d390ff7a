// Package database implements store.Store on top of sqlx with SQLite and
// Postgres drivers.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"contentflow/pipeline/internal/database/migrations"
	"contentflow/pipeline/internal/store"
)

// DB represents the database connection
type DB struct {
	*sqlx.DB
	driver string
	sb     sq.StatementBuilderType
}

var _ store.Store = (*DB)(nil)

// NewDB opens the database, applies pragmas for SQLite and runs the embedded migrations.
func NewDB(cfg *Config) (*DB, error) {
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}

	var (
		dsn         string
		placeholder sq.PlaceholderFormat
	)
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.inMemory() {
			dsn = "file::memory:?_foreign_keys=on"
			// every pooled connection would otherwise get its own empty database
			cfg.MaxOpenConns = 1
			cfg.MaxIdleConns = 1
		} else {
			dir := filepath.Dir(cfg.DSN)
			if dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, fmt.Errorf("failed to create directory for database: %w", err)
				}
			}
			dsn = fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_busy_timeout=%d&_foreign_keys=on",
				cfg.DSN, cfg.BusyTimeoutMS)
			if cfg.ReadOnly {
				dsn += "&mode=ro"
			} else {
				// Read-then-write transactions take the write lock at BEGIN.
				dsn += "&_txlock=immediate"
			}
		}
		placeholder = sq.Question
	case DriverPostgres:
		dsn = cfg.DSN
		placeholder = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	log.Info().Str("driver", cfg.Driver).Str("mode", modeStr(cfg.ReadOnly)).Msg("Opening database")

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if !cfg.inMemory() {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.Driver == DriverSQLite {
		pragmas := []string{
			fmt.Sprintf("PRAGMA cache_size = %d;", cfg.CacheSizeKB),
			"PRAGMA temp_store = MEMORY;",
		}
		if cfg.ReadOnly {
			pragmas = append(pragmas, "PRAGMA query_only = ON;")
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				log.Warn().Err(err).Str("pragma", pragma).Str("mode", modeStr(cfg.ReadOnly)).Msg("Failed to set PRAGMA")
			}
		}
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, classify(fmt.Errorf("failed to ping db (%s): %w", modeStr(cfg.ReadOnly), err), "", "")
	}

	if !cfg.ReadOnly && !cfg.SkipMigrations {
		log.Info().Msg("Running database migrations...")
		files, err := migrations.Embedded()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load migrations: %w", err)
		}
		if err := migrations.RunMigrations(db, files); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed successfully")
	} else {
		log.Info().Msg("Skipping migrations (from config).")
	}

	log.Info().Str("mode", modeStr(cfg.ReadOnly)).Msg("Database connection successful")
	return &DB{
		DB:     db,
		driver: cfg.Driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}

// Helper for logging
func modeStr(readOnly bool) string {
	if readOnly {
		return "read-only"
	}
	return "read-write"
}

// CheckSchema reports a SchemaMissing error when the migrations have not been applied.
func (db *DB) CheckSchema(ctx context.Context) error {
	var q string
	if db.driver == DriverPostgres {
		q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'ideas'"
	} else {
		q = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'ideas'"
	}
	var n int
	if err := db.GetContext(ctx, &n, q); err != nil {
		return classify(err, "schema", "")
	}
	if n == 0 {
		return &store.Error{Kind: store.KindSchemaMissing, Entity: "schema"}
	}
	return nil
}

// WithinTx runs fn in a transaction, committing when it returns nil.
func (db *DB) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err), "", "")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&repo{tx: tx, sb: db.sb}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err), "", "")
	}
	return nil
}

// DeleteDB removes the database file if it exists
func DeleteDB(dbPath string) error {
	if _, err := os.Stat(dbPath); err == nil {
		return os.Remove(dbPath)
	}
	return nil
}
