package editorial

import (
	"context"
	"fmt"

	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/store"
	"contentflow/pipeline/internal/workflow"
)

// TransitionArticle moves an article through its review lifecycle.
func (s *Service) TransitionArticle(ctx context.Context, id string, to models.ReviewStatus, actor string) (*models.Article, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if !validReviewStatus(workflow.ArticleStatuses(), to) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown article status %q", to)}
	}

	var article *models.Article
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		article, err = tx.GetArticle(ctx, id)
		if err != nil {
			return err
		}
		from := article.Status
		if err := workflow.ValidateArticleTransition(from, to); err != nil {
			return err
		}
		if err := s.moveArticle(ctx, tx, id, from, to); err != nil {
			return err
		}
		article.Status = to
		return s.audit(ctx, tx, actor, models.EntityArticle, id, "article.transitioned", models.JSONMap{
			"from": string(from),
			"to":   string(to),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("transition article %s: %w", id, err)
	}

	countTransition(models.EntityArticle, string(to))
	return article, nil
}

func (s *Service) moveArticle(ctx context.Context, tx store.Tx, id string, from, to models.ReviewStatus) error {
	err := tx.UpdateArticleStatus(ctx, id, from, to)
	if err == nil || !store.IsConflict(err) {
		return err
	}
	current, gerr := tx.GetArticle(ctx, id)
	if gerr != nil {
		return gerr
	}
	return &workflow.TransitionError{Entity: models.EntityArticle, From: string(current.Status), To: string(to)}
}

func validReviewStatus(valid []models.ReviewStatus, st models.ReviewStatus) bool {
	for _, v := range valid {
		if v == st {
			return true
		}
	}
	return false
}
