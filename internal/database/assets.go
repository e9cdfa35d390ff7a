package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"contentflow/pipeline/internal/models"
)

const assetColumns = "id, article_id, platform, version, content, metadata, status, created_at, updated_at"

func (r *repo) CreateAsset(ctx context.Context, a *models.Asset) error {
	return r.insert(ctx, "asset", a.ID, `
		INSERT INTO assets (id, article_id, platform, version, content, metadata, status, created_at, updated_at)
		VALUES (:id, :article_id, :platform, :version, :content, :metadata, :status, :created_at, :updated_at)`, a)
}

func (r *repo) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	var a models.Asset
	if err := r.get(ctx, "asset", id, &a, r.sb.Select(assetColumns).From("assets").Where(sq.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repo) ListAssetsByArticle(ctx context.Context, articleID string) ([]models.Asset, error) {
	assets := []models.Asset{}
	b := r.sb.Select(assetColumns).From("assets").Where(sq.Eq{"article_id": articleID}).OrderBy("platform", "version")
	if err := r.list(ctx, "asset", &assets, b); err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *repo) MaxAssetVersion(ctx context.Context, articleID string, platform models.Platform) (int, error) {
	var v int
	b := r.sb.Select("COALESCE(MAX(version), 0)").From("assets").
		Where(sq.Eq{"article_id": articleID, "platform": platform})
	if err := r.get(ctx, "asset", "", &v, b); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *repo) UpdateAssetStatus(ctx context.Context, id string, from, to models.ReviewStatus) error {
	return r.conditionalUpdate(ctx, "assets", "asset", id, string(from), string(to), nil)
}
