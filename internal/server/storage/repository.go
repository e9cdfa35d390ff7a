package storage

import (
	"context"
	"fmt"
	"time"

	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/store"
)

// IdeaQuery selects a page of ideas in (created_at, id) order. Cursor
// fields take precedence over Since.
type IdeaQuery struct {
	Limit           int
	Since           *time.Time
	CursorTimestamp *time.Time
	CursorID        string
	Status          models.IdeaStatus
	MinScore        float64
}

// IdeaRepository defines read operations for ideas.
type IdeaRepository interface {
	FetchIdeas(ctx context.Context, q IdeaQuery) ([]models.Idea, error)
}

// SourceRepository defines read operations for sources.
type SourceRepository interface {
	FetchSources(ctx context.Context) ([]models.Source, error)
}

// Repository serves the read side of the API from a store.Store.
type Repository struct {
	store store.Store
}

// NewRepository creates a new repository instance.
func NewRepository(st store.Store) *Repository {
	return &Repository{store: st}
}

// FetchIdeas retrieves ideas created after the cursor or the since time.
func (r *Repository) FetchIdeas(ctx context.Context, q IdeaQuery) ([]models.Idea, error) {
	filter := store.IdeaFilter{Status: q.Status, MinScore: q.MinScore, Limit: q.Limit}
	switch {
	case q.CursorTimestamp != nil:
		ts := q.CursorTimestamp.UTC()
		filter.AfterCreatedAt, filter.AfterID = &ts, q.CursorID
	case q.Since != nil:
		ts := q.Since.UTC()
		filter.AfterCreatedAt = &ts
	}

	var ideas []models.Idea
	err := r.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		ideas, err = tx.ListIdeas(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return ideas, nil
}

// FetchSources returns every source that has not been deleted.
func (r *Repository) FetchSources(ctx context.Context) ([]models.Source, error) {
	var sources []models.Source
	err := r.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		sources, err = tx.ListSources(ctx, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return sources, nil
}
