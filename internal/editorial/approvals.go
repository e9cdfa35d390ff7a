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

// CreateApprovalInput is a reviewer's decision on an article or asset.
type CreateApprovalInput struct {
	EntityType models.EntityType
	EntityID   string
	Decision   models.ApprovalDecision
	Actor      string
	Comment    string
}

// CreateApproval records a decision on an entity that is IN_REVIEW and moves
// the entity to APPROVED or back to DRAFT.
func (s *Service) CreateApproval(ctx context.Context, in CreateApprovalInput) (*models.Approval, error) {
	if in.EntityType != models.EntityArticle && in.EntityType != models.EntityAsset {
		return nil, &ValidationError{Field: "entity_type", Reason: "must be ARTICLE or ASSET"}
	}
	if err := validateID("entity_id", in.EntityID); err != nil {
		return nil, err
	}
	if _, err := workflow.ApprovalTarget(in.Decision); err != nil {
		return nil, &ValidationError{Field: "decision", Reason: err.Error()}
	}
	if strings.TrimSpace(in.Actor) == "" {
		return nil, &ValidationError{Field: "actor", Reason: "is required"}
	}

	approval := &models.Approval{
		ID:         uuid.NewString(),
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Decision:   in.Decision,
		Actor:      strings.TrimSpace(in.Actor),
		Comment:    in.Comment,
		CreatedAt:  s.now(),
	}

	var to models.ReviewStatus
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var (
			from      models.ReviewStatus
			articleID string
		)
		switch in.EntityType {
		case models.EntityArticle:
			article, err := tx.GetArticle(ctx, in.EntityID)
			if err != nil {
				return err
			}
			from, approval.EntityVersion = article.Status, article.Version
		case models.EntityAsset:
			asset, err := tx.GetAsset(ctx, in.EntityID)
			if err != nil {
				return err
			}
			from, approval.EntityVersion, articleID = asset.Status, asset.Version, asset.ArticleID
		}

		var err error
		if to, err = workflow.ValidateApproval(in.EntityType, from, in.Decision); err != nil {
			return err
		}
		if err := tx.CreateApproval(ctx, approval); err != nil {
			return err
		}

		if in.EntityType == models.EntityArticle {
			err = s.moveArticle(ctx, tx, in.EntityID, from, to)
		} else {
			err = s.moveAsset(ctx, tx, in.EntityID, from, to)
		}
		if err != nil {
			return err
		}

		if err := s.audit(ctx, tx, approval.Actor, in.EntityType, in.EntityID, "approval.created", models.JSONMap{
			"approval_id": approval.ID,
			"decision":    string(in.Decision),
			"from":        string(from),
			"to":          string(to),
		}); err != nil {
			return err
		}
		if articleID != "" {
			_, err = s.recompute(ctx, tx, articleID)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}

	countTransition(in.EntityType, string(to))
	return approval, nil
}
