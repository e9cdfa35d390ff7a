package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"contentflow/pipeline/internal/models"
)

func (r *repo) AppendEvent(ctx context.Context, e *models.EventLog) error {
	return r.insert(ctx, "event", e.ID, `
		INSERT INTO event_logs (id, actor, entity_type, entity_id, action, metadata, created_at)
		VALUES (:id, :actor, :entity_type, :entity_id, :action, :metadata, :created_at)`, e)
}

func (r *repo) CreateApproval(ctx context.Context, a *models.Approval) error {
	return r.insert(ctx, "approval", a.ID, `
		INSERT INTO approvals (id, entity_type, entity_id, entity_version, decision, actor, comment, created_at)
		VALUES (:id, :entity_type, :entity_id, :entity_version, :decision, :actor, :comment, :created_at)`, a)
}

func (r *repo) CreateGeneration(ctx context.Context, g *models.Generation) error {
	return r.insert(ctx, "generation", g.ID, `
		INSERT INTO generations (id, article_id, idea_id, model, input_tokens, output_tokens, cost_usd,
			duration_ms, attempts, fallback, system_prompt_preview, user_prompt_preview, created_at)
		VALUES (:id, :article_id, :idea_id, :model, :input_tokens, :output_tokens, :cost_usd,
			:duration_ms, :attempts, :fallback, :system_prompt_preview, :user_prompt_preview, :created_at)`, g)
}

func (r *repo) ListEvents(ctx context.Context, entityType models.EntityType, entityID string) ([]models.EventLog, error) {
	events := []models.EventLog{}
	b := r.sb.Select("id, actor, entity_type, entity_id, action, metadata, created_at").
		From("event_logs").
		Where(sq.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("created_at", "id")
	if err := r.list(ctx, "event", &events, b); err != nil {
		return nil, err
	}
	return events, nil
}
