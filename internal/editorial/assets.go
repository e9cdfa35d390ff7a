package editorial

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/store"
	"contentflow/pipeline/internal/workflow"
)

// CreateAssetInput is the platform rendering of an article.
type CreateAssetInput struct {
	ArticleID string
	Platform  models.Platform
	Content   string
	Metadata  models.JSONMap
	Actor     string
}

// CreateAsset stores a new DRAFT asset version. Versions count up per
// article and platform starting at 1.
func (s *Service) CreateAsset(ctx context.Context, in CreateAssetInput) (*models.Asset, error) {
	if err := validateID("article_id", in.ArticleID); err != nil {
		return nil, err
	}
	if !in.Platform.Valid() {
		return nil, &ValidationError{Field: "platform", Reason: fmt.Sprintf("unknown platform %q", in.Platform)}
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, &ValidationError{Field: "content", Reason: "is required"}
	}

	asset := models.NewAsset()
	asset.ID = uuid.NewString()
	asset.ArticleID = in.ArticleID
	asset.Platform = in.Platform
	asset.Content = in.Content
	if in.Metadata != nil {
		asset.Metadata = in.Metadata
	}

	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		article, err := tx.GetArticle(ctx, in.ArticleID)
		if err != nil {
			return err
		}
		if article.Status == models.StatusArchived {
			return &PreconditionError{Entity: "article", ID: article.ID, Current: string(article.Status), Reason: "archived articles take no new assets"}
		}

		latest, err := tx.MaxAssetVersion(ctx, in.ArticleID, in.Platform)
		if err != nil {
			return err
		}
		asset.Version = latest + 1

		if err := tx.CreateAsset(ctx, asset); err != nil {
			return err
		}
		return s.audit(ctx, tx, in.Actor, models.EntityAsset, asset.ID, "asset.created", models.JSONMap{
			"article_id": asset.ArticleID,
			"platform":   string(asset.Platform),
			"version":    asset.Version,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create asset: %w", err)
	}
	return asset, nil
}

// TransitionAsset moves an asset through its review lifecycle and refreshes
// the owning article's distribution status.
func (s *Service) TransitionAsset(ctx context.Context, id string, to models.ReviewStatus, actor string) (*models.Asset, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if !validReviewStatus(workflow.AssetStatuses(), to) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown asset status %q", to)}
	}

	var asset *models.Asset
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		asset, err = tx.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		from := asset.Status
		if err := workflow.ValidateAssetTransition(from, to); err != nil {
			return err
		}
		if err := s.moveAsset(ctx, tx, id, from, to); err != nil {
			return err
		}
		asset.Status = to
		if err := s.audit(ctx, tx, actor, models.EntityAsset, id, "asset.transitioned", models.JSONMap{
			"from": string(from),
			"to":   string(to),
		}); err != nil {
			return err
		}
		_, err = s.recompute(ctx, tx, asset.ArticleID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transition asset %s: %w", id, err)
	}

	countTransition(models.EntityAsset, string(to))
	return asset, nil
}

func (s *Service) moveAsset(ctx context.Context, tx store.Tx, id string, from, to models.ReviewStatus) error {
	err := tx.UpdateAssetStatus(ctx, id, from, to)
	if err == nil || !store.IsConflict(err) {
		return err
	}
	current, gerr := tx.GetAsset(ctx, id)
	if gerr != nil {
		return gerr
	}
	return &workflow.TransitionError{Entity: models.EntityAsset, From: string(current.Status), To: string(to)}
}
