package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"contentflow/pipeline/internal/models"
)

const articleColumns = "id, title, body, plain_text, status, version, distribution_status, idea_id, ai_generated, seo_title, seo_description, slug, external_id, external_url, created_at, updated_at"

func (r *repo) CreateArticle(ctx context.Context, a *models.Article) error {
	return r.insert(ctx, "article", a.ID, `
		INSERT INTO articles (id, title, body, plain_text, status, version, distribution_status, idea_id,
			ai_generated, seo_title, seo_description, slug, external_id, external_url, created_at, updated_at)
		VALUES (:id, :title, :body, :plain_text, :status, :version, :distribution_status, :idea_id,
			:ai_generated, :seo_title, :seo_description, :slug, :external_id, :external_url, :created_at, :updated_at)`, a)
}

func (r *repo) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	var a models.Article
	if err := r.get(ctx, "article", id, &a, r.sb.Select(articleColumns).From("articles").Where(sq.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repo) UpdateArticleStatus(ctx context.Context, id string, from, to models.ReviewStatus) error {
	return r.conditionalUpdate(ctx, "articles", "article", id, string(from), string(to), nil)
}

func (r *repo) SetDistributionStatus(ctx context.Context, id string, status models.DistributionStatus) error {
	return r.touch(ctx, "articles", "article", id, map[string]interface{}{"distribution_status": status})
}

func (r *repo) SetArticleExternal(ctx context.Context, id, externalID, externalURL string) error {
	return r.touch(ctx, "articles", "article", id, map[string]interface{}{
		"external_id":  externalID,
		"external_url": externalURL,
	})
}
