package editorial

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contentflow/pipeline/internal/fingerprint"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/scoring"
	"contentflow/pipeline/internal/store"
	"contentflow/pipeline/internal/workflow"
)

// CreateIdeaInput is a manually entered idea.
type CreateIdeaInput struct {
	Title             string
	Description       string
	OriginURL         string
	SourceID          string
	Tags              []string
	OriginPublishedAt *time.Time
	Actor             string
}

// CreateIdea scores and stores a manual idea. An idea whose fingerprint or
// origin URL already exists is rejected with a PreconditionError.
func (s *Service) CreateIdea(ctx context.Context, in CreateIdeaInput) (*models.Idea, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "is required"}
	}
	if in.SourceID != "" {
		if err := validateID("source_id", in.SourceID); err != nil {
			return nil, err
		}
	}

	if fingerprint.Normalize(title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "has no letters or digits"}
	}

	idea := models.NewIdea()
	idea.ID = uuid.NewString()
	idea.Title = title
	idea.Description = strings.TrimSpace(in.Description)
	idea.Fingerprint = fingerprint.Of(title)
	idea.OriginPublishedAt = in.OriginPublishedAt
	if len(in.Tags) > 0 {
		idea.Tags = models.StringList(in.Tags)
	}
	if u := strings.TrimSpace(in.OriginURL); u != "" {
		idea.OriginURL = &u
	}

	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		score := scoring.Input{
			Title:       idea.Title,
			Description: idea.Description,
			PublishedAt: idea.OriginPublishedAt,
		}
		if in.SourceID != "" {
			src, err := tx.GetSource(ctx, in.SourceID)
			if err != nil {
				return err
			}
			idea.SourceID = &src.ID
			score.SourceWeight = src.Weight
			score.SourceCategory = src.Category
		}

		dup, err := tx.FindIdeaByFingerprintOrURL(ctx, idea.Fingerprint, deref(idea.OriginURL))
		if err != nil {
			return err
		}
		if dup != nil {
			return &PreconditionError{Entity: "idea", ID: dup.ID, Reason: "duplicate of an existing idea"}
		}

		idea.ScoreBreakdown = s.scorer.Score(score)
		idea.Score = float64(idea.ScoreBreakdown.Total)

		if err := tx.CreateIdea(ctx, idea); err != nil {
			return err
		}
		return s.audit(ctx, tx, in.Actor, models.EntityIdea, idea.ID, "idea.created", models.JSONMap{
			"origin": string(idea.Origin),
			"score":  idea.ScoreBreakdown.Total,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create idea: %w", err)
	}

	s.logger.Info().Str("idea_id", idea.ID).Int("score", idea.ScoreBreakdown.Total).Msg("Created manual idea")
	return idea, nil
}

// TransitionIdea moves an idea to another editorial status.
func (s *Service) TransitionIdea(ctx context.Context, id string, to models.IdeaStatus, actor string) (*models.Idea, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if !validIdeaStatus(to) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown idea status %q", to)}
	}

	var idea *models.Idea
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		idea, err = tx.GetIdea(ctx, id)
		if err != nil {
			return err
		}
		from := idea.Status
		if err := workflow.ValidateIdeaTransition(from, to); err != nil {
			return err
		}
		if err := tx.UpdateIdeaStatus(ctx, id, from, to); err != nil {
			if store.IsConflict(err) {
				return s.ideaConflict(ctx, tx, id, to)
			}
			return err
		}
		idea.Status = to
		return s.audit(ctx, tx, actor, models.EntityIdea, id, "idea.transitioned", models.JSONMap{
			"from": string(from),
			"to":   string(to),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("transition idea %s: %w", id, err)
	}

	countTransition(models.EntityIdea, string(to))
	return idea, nil
}

func (s *Service) ideaConflict(ctx context.Context, tx store.Tx, id string, to models.IdeaStatus) error {
	current, err := tx.GetIdea(ctx, id)
	if err != nil {
		return err
	}
	return &workflow.TransitionError{Entity: models.EntityIdea, From: string(current.Status), To: string(to)}
}

func validIdeaStatus(st models.IdeaStatus) bool {
	for _, v := range workflow.IdeaStatuses() {
		if v == st {
			return true
		}
	}
	return false
}

