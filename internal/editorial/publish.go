package editorial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/publisher"
	"contentflow/pipeline/internal/store"
	"contentflow/pipeline/internal/workflow"
)

// Error codes recorded on failed automated jobs.
const (
	ErrCodeNotConfigured = "NOT_CONFIGURED"
	ErrCodeUnavailable   = "UNAVAILABLE"
	ErrCodePublish       = "PUBLISH_FAILED"
)

// TransitionJobInput carries the target status and the outcome fields of a publish job.
type TransitionJobInput struct {
	To           models.PublishJobStatus
	ExternalURL  string
	ExternalID   string
	ErrorCode    string
	ErrorMessage string
	Actor        string
}

// ManualPublishInput records content a person already placed on a platform.
type ManualPublishInput struct {
	AssetID     string
	ExternalURL string
	ExternalID  string
	Actor       string
}

// TransitionPublishJob moves a job through its lifecycle.
func (s *Service) TransitionPublishJob(ctx context.Context, id string, in TransitionJobInput) (*models.PublishJob, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if !validJobStatus(in.To) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown publish job status %q", in.To)}
	}

	var job *models.PublishJob
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		job, err = tx.GetPublishJob(ctx, id)
		if err != nil {
			return err
		}
		from := job.Status
		if err := workflow.ValidatePublishJobTransition(from, in.To); err != nil {
			return err
		}

		job.Status = in.To
		setIfPresent(&job.ExternalURL, in.ExternalURL)
		setIfPresent(&job.ExternalID, in.ExternalID)
		setIfPresent(&job.ErrorCode, in.ErrorCode)
		setIfPresent(&job.ErrorMessage, in.ErrorMessage)
		return s.saveJob(ctx, tx, job, from, in.Actor)
	})
	if err != nil {
		return nil, fmt.Errorf("transition publish job %s: %w", id, err)
	}

	countTransition(models.EntityPublishJob, string(in.To))
	return job, nil
}

// ManualPublishAsset records a completed manual publication of an asset.
// Publishing an asset that is not APPROVED is allowed but logged.
func (s *Service) ManualPublishAsset(ctx context.Context, in ManualPublishInput) (*models.PublishJob, error) {
	if err := validateID("asset_id", in.AssetID); err != nil {
		return nil, err
	}

	var job *models.PublishJob
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		asset, err := tx.GetAsset(ctx, in.AssetID)
		if err != nil {
			return err
		}
		if asset.Status != models.StatusApproved {
			s.logger.Warn().
				Str("asset_id", asset.ID).
				Str("status", string(asset.Status)).
				Msg("Manual publish of an asset that is not approved")
		}

		job = s.newJob(asset, models.PublishMethodManual)
		setIfPresent(&job.ExternalURL, in.ExternalURL)
		setIfPresent(&job.ExternalID, in.ExternalID)
		if err := s.insertJob(ctx, tx, job, asset.ArticleID, in.Actor); err != nil {
			return err
		}

		if asset.Platform == models.PlatformWebsite && job.ExternalURL != nil {
			if err := tx.SetArticleExternal(ctx, asset.ArticleID, deref(job.ExternalID), *job.ExternalURL); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("manual publish asset %s: %w", in.AssetID, err)
	}

	countTransition(models.EntityPublishJob, string(job.Status))
	return job, nil
}

// QueuePublishJob creates an automated job for an approved asset.
func (s *Service) QueuePublishJob(ctx context.Context, assetID, actor string) (*models.PublishJob, error) {
	if err := validateID("asset_id", assetID); err != nil {
		return nil, err
	}

	var job *models.PublishJob
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		asset, err := tx.GetAsset(ctx, assetID)
		if err != nil {
			return err
		}
		if asset.Status != models.StatusApproved {
			return &PreconditionError{Entity: "asset", ID: asset.ID, Current: string(asset.Status), Reason: "only approved assets can be queued for publishing"}
		}
		job = s.newJob(asset, models.PublishMethodAutomated)
		return s.insertJob(ctx, tx, job, asset.ArticleID, actor)
	})
	if err != nil {
		return nil, fmt.Errorf("queue publish job: %w", err)
	}

	countTransition(models.EntityPublishJob, string(job.Status))
	return job, nil
}

// RunPublishJob executes a queued automated job through the publisher. The
// external call happens between two transactions: the first marks the job
// RUNNING, the second records SUCCEEDED or FAILED. A publisher failure is
// recorded on the job and also returned.
func (s *Service) RunPublishJob(ctx context.Context, id, actor string) (*models.PublishJob, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if s.publisher == nil {
		return nil, fmt.Errorf("run publish job %s: %w", id, publisher.ErrNotConfigured)
	}

	var (
		job     *models.PublishJob
		asset   *models.Asset
		article *models.Article
	)
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		job, err = tx.GetPublishJob(ctx, id)
		if err != nil {
			return err
		}
		if job.Method != models.PublishMethodAutomated {
			return &PreconditionError{Entity: "publish job", ID: id, Current: string(job.Status), Reason: "manual jobs are not executed"}
		}
		from := job.Status
		if err := workflow.ValidatePublishJobTransition(from, models.JobRunning); err != nil {
			return err
		}
		if asset, err = tx.GetAsset(ctx, job.AssetID); err != nil {
			return err
		}
		if article, err = tx.GetArticle(ctx, asset.ArticleID); err != nil {
			return err
		}
		job.Status = models.JobRunning
		return s.saveJob(ctx, tx, job, from, actor)
	})
	if err != nil {
		return nil, fmt.Errorf("run publish job %s: %w", id, err)
	}
	countTransition(models.EntityPublishJob, string(models.JobRunning))

	res, perr := s.publisher.Publish(ctx, article, asset, false)

	job.Status = models.JobSucceeded
	if perr != nil {
		job.Status = models.JobFailed
		code, msg := jobErrorCode(perr), perr.Error()
		job.ErrorCode, job.ErrorMessage = &code, &msg
		s.logger.Error().Err(perr).Str("job_id", id).Str("asset_id", asset.ID).Msg("Publish failed")
	} else {
		job.ExternalID, job.ExternalURL = &res.DocumentID, &res.URL
	}

	// The outcome is recorded even when the caller has gone away.
	rctx := context.WithoutCancel(ctx)
	err = s.store.WithinTx(rctx, func(tx store.Tx) error {
		if err := s.saveJob(rctx, tx, job, models.JobRunning, actor); err != nil {
			return err
		}
		if perr == nil && asset.Platform == models.PlatformWebsite {
			return tx.SetArticleExternal(rctx, article.ID, res.DocumentID, res.URL)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record publish job %s: %w", id, err)
	}
	countTransition(models.EntityPublishJob, string(job.Status))

	if perr != nil {
		return job, fmt.Errorf("run publish job %s: %w", id, perr)
	}
	s.logger.Info().Str("job_id", id).Str("document_id", res.DocumentID).Msg("Published asset")
	return job, nil
}

func (s *Service) newJob(asset *models.Asset, method models.PublishMethod) *models.PublishJob {
	now := s.now()
	job := &models.PublishJob{
		ID:           uuid.NewString(),
		AssetID:      asset.ID,
		AssetVersion: asset.Version,
		Platform:     asset.Platform,
		Method:       method,
		Status:       workflow.InitialPublishJobStatus(method),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if job.Status.Terminal() {
		job.CompletedAt = &now
	}
	return job
}

func (s *Service) insertJob(ctx context.Context, tx store.Tx, job *models.PublishJob, articleID, actor string) error {
	if err := tx.CreatePublishJob(ctx, job); err != nil {
		return err
	}
	if err := s.audit(ctx, tx, actor, models.EntityPublishJob, job.ID, "publish_job.created", models.JSONMap{
		"asset_id": job.AssetID,
		"method":   string(job.Method),
		"status":   string(job.Status),
	}); err != nil {
		return err
	}
	_, err := s.recompute(ctx, tx, articleID)
	return err
}

// saveJob writes job's new status guarded on from, audits the change and
// refreshes the article rollup.
func (s *Service) saveJob(ctx context.Context, tx store.Tx, job *models.PublishJob, from models.PublishJobStatus, actor string) error {
	if job.Status.Terminal() && job.CompletedAt == nil {
		now := s.now()
		job.CompletedAt = &now
	}
	if err := tx.UpdatePublishJob(ctx, job, from); err != nil {
		if !store.IsConflict(err) {
			return err
		}
		current, gerr := tx.GetPublishJob(ctx, job.ID)
		if gerr != nil {
			return gerr
		}
		return &workflow.TransitionError{Entity: models.EntityPublishJob, From: string(current.Status), To: string(job.Status)}
	}
	if err := s.audit(ctx, tx, actor, models.EntityPublishJob, job.ID, "publish_job.transitioned", models.JSONMap{
		"from": string(from),
		"to":   string(job.Status),
	}); err != nil {
		return err
	}

	asset, err := tx.GetAsset(ctx, job.AssetID)
	if err != nil {
		return err
	}
	_, err = s.recompute(ctx, tx, asset.ArticleID)
	return err
}

func jobErrorCode(err error) string {
	var unavailable *publisher.UnavailableError
	switch {
	case errors.Is(err, publisher.ErrNotConfigured):
		return ErrCodeNotConfigured
	case errors.As(err, &unavailable):
		return ErrCodeUnavailable
	default:
		return ErrCodePublish
	}
}

func validJobStatus(st models.PublishJobStatus) bool {
	for _, v := range workflow.PublishJobStatuses() {
		if v == st {
			return true
		}
	}
	return false
}

func setIfPresent(dst **string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = &v
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
