package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"contentflow/pipeline/internal/models"
)

const publishJobColumns = "j.id, j.asset_id, j.asset_version, j.platform, j.method, j.status, j.external_url, j.external_id, j.error_code, j.error_message, j.created_at, j.updated_at, j.completed_at"

func (r *repo) CreatePublishJob(ctx context.Context, job *models.PublishJob) error {
	return r.insert(ctx, "publish job", job.ID, `
		INSERT INTO publish_jobs (id, asset_id, asset_version, platform, method, status, external_url,
			external_id, error_code, error_message, created_at, updated_at, completed_at)
		VALUES (:id, :asset_id, :asset_version, :platform, :method, :status, :external_url,
			:external_id, :error_code, :error_message, :created_at, :updated_at, :completed_at)`, job)
}

func (r *repo) GetPublishJob(ctx context.Context, id string) (*models.PublishJob, error) {
	var job models.PublishJob
	b := r.sb.Select(publishJobColumns).From("publish_jobs j").Where(sq.Eq{"j.id": id})
	if err := r.get(ctx, "publish job", id, &job, b); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repo) ListPublishJobsByArticle(ctx context.Context, articleID string) ([]models.PublishJob, error) {
	jobs := []models.PublishJob{}
	b := r.sb.Select(publishJobColumns).
		From("publish_jobs j").
		Join("assets a ON a.id = j.asset_id").
		Where(sq.Eq{"a.article_id": articleID}).
		OrderBy("j.created_at", "j.id")
	if err := r.list(ctx, "publish job", &jobs, b); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) UpdatePublishJob(ctx context.Context, job *models.PublishJob, from models.PublishJobStatus) error {
	return r.conditionalUpdate(ctx, "publish_jobs", "publish job", job.ID, string(from), string(job.Status), map[string]interface{}{
		"external_url":  job.ExternalURL,
		"external_id":   job.ExternalID,
		"error_code":    job.ErrorCode,
		"error_message": job.ErrorMessage,
		"completed_at":  job.CompletedAt,
	})
}
