package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"contentflow/pipeline/internal/store"
)

// repo implements store.Tx over one sqlx transaction.
type repo struct {
	tx *sqlx.Tx
	sb sq.StatementBuilderType
}

var _ store.Tx = (*repo)(nil)

func (r *repo) insert(ctx context.Context, entity, id, query string, arg interface{}) error {
	if _, err := r.tx.NamedExecContext(ctx, query, arg); err != nil {
		return classify(fmt.Errorf("insert %s: %w", entity, err), entity, id)
	}
	return nil
}

func (r *repo) get(ctx context.Context, entity, id string, dest interface{}, b sq.SelectBuilder) error {
	q, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", entity, err)
	}
	if err := r.tx.GetContext(ctx, dest, q, args...); err != nil {
		return classify(err, entity, id)
	}
	return nil
}

func (r *repo) list(ctx context.Context, entity string, dest interface{}, b sq.SelectBuilder) error {
	q, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", entity, err)
	}
	if err := r.tx.SelectContext(ctx, dest, q, args...); err != nil {
		return classify(err, entity, "")
	}
	return nil
}

func (r *repo) exec(ctx context.Context, entity, id string, b sq.UpdateBuilder) (int64, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s update: %w", entity, err)
	}
	res, err := r.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, classify(err, entity, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, entity, id)
	}
	return n, nil
}

// conditionalUpdate runs an update guarded on the current status. Zero rows
// affected means the row is gone (NotFound) or its status moved (Conflict).
func (r *repo) conditionalUpdate(ctx context.Context, table, entity, id string, from, to string, extra map[string]interface{}) error {
	b := r.sb.Update(table).
		Set("status", to).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "status": from})
	for col, v := range extra {
		b = b.Set(col, v)
	}

	n, err := r.exec(ctx, entity, id, b)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := r.get(ctx, entity, id, &exists, r.sb.Select("COUNT(*)").From(table).Where(sq.Eq{"id": id})); err != nil {
		return err
	}
	if exists == 0 {
		return store.NotFound(entity, id)
	}
	return store.Conflict(entity, id)
}

func (r *repo) touch(ctx context.Context, table, entity, id string, set map[string]interface{}) error {
	set["updated_at"] = time.Now().UTC()
	n, err := r.exec(ctx, entity, id, r.sb.Update(table).SetMap(set).Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.NotFound(entity, id)
	}
	return nil
}
