package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"contentflow/pipeline/internal/store"
)

// classify maps driver errors onto store error kinds using error codes only.
func classify(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	return &store.Error{Kind: kindOf(err), Entity: entity, ID: id, Err: err}
}

func kindOf(err error) store.Kind {
	if errors.Is(err, sql.ErrNoRows) {
		return store.KindNotFound
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return store.KindConnectionUnavailable
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrConstraint:
			return store.KindConflict
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrIoErr:
			return store.KindConnectionUnavailable
		}
		return store.KindUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42P01" || pgErr.Code == "3F000":
			return store.KindSchemaMissing
		case pgErr.Code == "23505" || pgErr.Code == "23503" || pgErr.Code == "40001" || pgErr.Code == "40P01":
			return store.KindConflict
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:3] == "57P"):
			return store.KindConnectionUnavailable
		}
		return store.KindUnknown
	}

	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return store.KindConnectionUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return store.KindConnectionUnavailable
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return store.KindConnectionUnavailable
	}
	return store.KindUnknown
}
