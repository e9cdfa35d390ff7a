package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/store"
)

const ideaColumns = "id, title, description, origin, origin_url, source_id, fingerprint, score, score_breakdown, tags, origin_published_at, status, created_at, updated_at"

func (r *repo) CreateIdea(ctx context.Context, idea *models.Idea) error {
	return r.insert(ctx, "idea", idea.ID, `
		INSERT INTO ideas (id, title, description, origin, origin_url, source_id, fingerprint, score,
			score_breakdown, tags, origin_published_at, status, created_at, updated_at)
		VALUES (:id, :title, :description, :origin, :origin_url, :source_id, :fingerprint, :score,
			:score_breakdown, :tags, :origin_published_at, :status, :created_at, :updated_at)`, idea)
}

func (r *repo) GetIdea(ctx context.Context, id string) (*models.Idea, error) {
	var idea models.Idea
	if err := r.get(ctx, "idea", id, &idea, r.sb.Select(ideaColumns).From("ideas").Where(sq.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &idea, nil
}

func (r *repo) FindIdeaByFingerprintOrURL(ctx context.Context, fingerprint, originURL string) (*models.Idea, error) {
	cond := sq.Or{sq.Eq{"fingerprint": fingerprint}}
	if originURL != "" {
		cond = append(cond, sq.Eq{"origin_url": originURL})
	}

	var ideas []models.Idea
	b := r.sb.Select(ideaColumns).From("ideas").Where(cond).OrderBy("created_at", "id").Limit(1)
	if err := r.list(ctx, "idea", &ideas, b); err != nil {
		return nil, err
	}
	if len(ideas) == 0 {
		return nil, nil
	}
	return &ideas[0], nil
}

func (r *repo) ListIdeas(ctx context.Context, f store.IdeaFilter) ([]models.Idea, error) {
	b := r.sb.Select(ideaColumns).From("ideas").OrderBy("created_at", "id")
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.MinScore > 0 {
		b = b.Where(sq.GtOrEq{"score": f.MinScore})
	}
	if f.AfterCreatedAt != nil {
		b = b.Where(sq.Or{
			sq.Gt{"created_at": f.AfterCreatedAt.UTC()},
			sq.And{sq.Eq{"created_at": f.AfterCreatedAt.UTC()}, sq.Gt{"id": f.AfterID}},
		})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}

	ideas := []models.Idea{}
	if err := r.list(ctx, "idea", &ideas, b); err != nil {
		return nil, err
	}
	return ideas, nil
}

func (r *repo) UpdateIdeaStatus(ctx context.Context, id string, from, to models.IdeaStatus) error {
	return r.conditionalUpdate(ctx, "ideas", "idea", id, string(from), string(to), nil)
}
