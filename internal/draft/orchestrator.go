// Package draft turns an idea into an AI-written article draft.
package draft

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contentflow/pipeline/internal/ai"
	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/metrics"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/store"
	"contentflow/pipeline/internal/workflow"
)

const (
	defaultTemperature = 0.7
	retryTemperature   = 0.2
	previewRunes       = 500
)

// Result is the outcome of one draft generation.
type Result struct {
	Article    *models.Article
	Generation *models.Generation
	Fallback   bool
	Warnings   []string
}

// Orchestrator prompts the model, parses its answer and persists the draft.
type Orchestrator struct {
	store     store.Store
	completer ai.Completer
	logger    zerolog.Logger
	now       func() time.Time
}

func New(st store.Store, completer ai.Completer, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		completer: completer,
		logger:    logger.With().Str("component", "draft").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// usage accumulates accounting across the first call and the retry.
type usage struct {
	model        string
	inputTokens  int
	outputTokens int
	costUSD      float64
	durationMs   int64
	attempts     int
}

func (u *usage) add(r *ai.Response) {
	if r.Model != "" {
		u.model = r.Model
	}
	u.inputTokens += r.InputTokens
	u.outputTokens += r.OutputTokens
	u.costUSD += r.CostUSD
	u.durationMs += r.DurationMs
	u.attempts += r.Attempts
}

// Generate drafts an article from the idea. The idea must be NEW or SELECTED.
// An unparseable model answer produces a fallback article instead of an
// error; provider failures are returned to the caller.
func (o *Orchestrator) Generate(ctx context.Context, ideaID, actor string) (*Result, error) {
	if _, err := uuid.Parse(ideaID); err != nil {
		return nil, &editorial.ValidationError{Field: "id", Reason: "must be a UUID"}
	}
	if actor = strings.TrimSpace(actor); actor == "" {
		actor = models.SystemActor
	}

	var idea *models.Idea
	err := o.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		if idea, err = tx.GetIdea(ctx, ideaID); err != nil {
			return err
		}
		return workflow.ValidateIdeaTransition(idea.Status, models.IdeaStatusEnriched)
	})
	if err != nil {
		return nil, fmt.Errorf("generate draft for idea %s: %w", ideaID, err)
	}

	system, user, err := BuildPrompts(idea)
	if err != nil {
		return nil, err
	}

	log := o.logger.With().Str("idea_id", idea.ID).Logger()
	var u usage

	resp, err := o.complete(ctx, ai.Request{SystemPrompt: system, UserPrompt: user, Temperature: defaultTemperature}, &u)
	if err != nil {
		return nil, fmt.Errorf("generate draft for idea %s: %w", ideaID, err)
	}
	d := Parse(resp.Text)

	if d == nil {
		log.Warn().Msg("Model response is not valid draft JSON, retrying with strict instructions")
		resp, err = o.complete(ctx, ai.Request{SystemPrompt: system, UserPrompt: user + strictSuffix, Temperature: retryTemperature}, &u)
		if err != nil {
			return nil, fmt.Errorf("generate draft for idea %s: %w", ideaID, err)
		}
		d = Parse(resp.Text)
	}

	fallback := d == nil
	if fallback {
		log.Warn().Msg("Model response unusable after retry, using fallback draft")
		metrics.AICalls.WithLabelValues("fallback").Inc()
		d = Fallback(idea, resp.Text)
	}
	for _, issue := range d.Issues {
		log.Warn().Str("issue", issue.String()).Msg("Dropped invalid block")
	}

	warnings := Validate(d.Blocks)
	for _, w := range warnings {
		log.Warn().Str("warning", w).Msg("Draft failed structure check")
	}

	now := o.now()
	article := models.NewArticle()
	article.ID = uuid.NewString()
	article.Title = firstNonEmpty(d.Meta.Title, idea.Title)
	article.Body = d.Blocks
	article.PlainText = d.Blocks.PlainText()
	article.IdeaID = &idea.ID
	article.AIGenerated = true
	article.SEOTitle = d.Meta.SEOTitle
	article.SEODescription = d.Meta.SEODescription
	article.Slug = d.Meta.Slug
	article.CreatedAt, article.UpdatedAt = now, now

	gen := &models.Generation{
		ID:                  uuid.NewString(),
		ArticleID:           article.ID,
		IdeaID:              idea.ID,
		Model:               u.model,
		InputTokens:         u.inputTokens,
		OutputTokens:        u.outputTokens,
		CostUSD:             u.costUSD,
		DurationMs:          u.durationMs,
		Attempts:            u.attempts,
		Fallback:            fallback,
		SystemPromptPreview: preview(system),
		UserPromptPreview:   preview(user),
		CreatedAt:           now,
	}

	err = o.store.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetIdea(ctx, idea.ID)
		if err != nil {
			return err
		}
		from := current.Status
		if err := workflow.ValidateIdeaTransition(from, models.IdeaStatusEnriched); err != nil {
			return err
		}
		if err := tx.CreateArticle(ctx, article); err != nil {
			return err
		}
		if err := tx.CreateGeneration(ctx, gen); err != nil {
			return err
		}
		if err := tx.UpdateIdeaStatus(ctx, idea.ID, from, models.IdeaStatusEnriched); err != nil {
			if !store.IsConflict(err) {
				return err
			}
			latest, gerr := tx.GetIdea(ctx, idea.ID)
			if gerr != nil {
				return gerr
			}
			return &workflow.TransitionError{Entity: models.EntityIdea, From: string(latest.Status), To: string(models.IdeaStatusEnriched)}
		}

		if err := tx.AppendEvent(ctx, &models.EventLog{
			ID:         uuid.NewString(),
			Actor:      actor,
			EntityType: models.EntityArticle,
			EntityID:   article.ID,
			Action:     "article.generated",
			Metadata: models.JSONMap{
				"idea_id":       idea.ID,
				"generation_id": gen.ID,
				"fallback":      fallback,
				"categories":    d.Meta.Categories,
				"warnings":      warnings,
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.EventLog{
			ID:         uuid.NewString(),
			Actor:      actor,
			EntityType: models.EntityIdea,
			EntityID:   idea.ID,
			Action:     "idea.transitioned",
			Metadata: models.JSONMap{
				"from":       string(from),
				"to":         string(models.IdeaStatusEnriched),
				"article_id": article.ID,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("persist draft for idea %s: %w", ideaID, err)
	}

	metrics.Transitions.WithLabelValues(string(models.EntityIdea), string(models.IdeaStatusEnriched)).Inc()
	log.Info().
		Str("article_id", article.ID).
		Bool("fallback", fallback).
		Int("input_tokens", u.inputTokens).
		Int("output_tokens", u.outputTokens).
		Float64("cost_usd", u.costUSD).
		Msg("Generated draft")

	return &Result{Article: article, Generation: gen, Fallback: fallback, Warnings: warnings}, nil
}

func (o *Orchestrator) complete(ctx context.Context, req ai.Request, u *usage) (*ai.Response, error) {
	resp, err := o.completer.Complete(ctx, req)
	if err != nil {
		metrics.AICalls.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.AICalls.WithLabelValues("ok").Inc()
	metrics.AICostUSD.Add(resp.CostUSD)
	u.add(resp)
	return resp, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
