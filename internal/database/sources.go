package database

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"contentflow/pipeline/internal/models"
)

const sourceColumns = "id, name, kind, url, active, weight, category, tags, poll_interval_minutes, last_polled_at, last_item_count, last_error, created_at, updated_at, deleted_at"

func (r *repo) CreateSource(ctx context.Context, s *models.Source) error {
	return r.insert(ctx, "source", s.ID, `
		INSERT INTO sources (id, name, kind, url, active, weight, category, tags, poll_interval_minutes,
			last_polled_at, last_item_count, last_error, created_at, updated_at, deleted_at)
		VALUES (:id, :name, :kind, :url, :active, :weight, :category, :tags, :poll_interval_minutes,
			:last_polled_at, :last_item_count, :last_error, :created_at, :updated_at, :deleted_at)`, s)
}

func (r *repo) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var s models.Source
	b := r.sb.Select(sourceColumns).From("sources").Where(sq.Eq{"id": id, "deleted_at": nil})
	if err := r.get(ctx, "source", id, &s, b); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repo) ListSources(ctx context.Context, activeOnly bool) ([]models.Source, error) {
	b := r.sb.Select(sourceColumns).From("sources").Where(sq.Eq{"deleted_at": nil}).OrderBy("created_at", "id")
	if activeOnly {
		b = b.Where(sq.Eq{"active": true})
	}
	var sources []models.Source
	if err := r.list(ctx, "source", &sources, b); err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *repo) RecordPoll(ctx context.Context, id string, polledAt time.Time, itemCount int, lastErr *string) error {
	return r.touch(ctx, "sources", "source", id, map[string]interface{}{
		"last_polled_at":  polledAt.UTC(),
		"last_item_count": itemCount,
		"last_error":      lastErr,
	})
}
