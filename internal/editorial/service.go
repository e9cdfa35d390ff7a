// Package editorial implements the operations that change editorial state.
// Each operation reads, validates, writes and audits inside one transaction.
package editorial

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contentflow/pipeline/internal/distribution"
	"contentflow/pipeline/internal/metrics"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/publisher"
	"contentflow/pipeline/internal/scoring"
	"contentflow/pipeline/internal/store"
)

// Publisher places an asset at its destination.
type Publisher interface {
	Publish(ctx context.Context, article *models.Article, asset *models.Asset, draft bool) (*publisher.Result, error)
}

// Service runs editorial operations against a store.
type Service struct {
	store     store.Store
	scorer    *scoring.Engine
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService wires the service. pub may be nil when automated publishing is not configured.
func NewService(st store.Store, scorer *scoring.Engine, pub Publisher, logger zerolog.Logger) *Service {
	if scorer == nil {
		scorer = scoring.New(nil)
	}
	return &Service{
		store:     st,
		scorer:    scorer,
		publisher: pub,
		logger:    logger.With().Str("component", "editorial").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Field: field, Reason: "must be a UUID"}
	}
	return nil
}

func actorOr(actor string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	return models.SystemActor
}

func (s *Service) audit(ctx context.Context, tx store.Tx, actor string, entity models.EntityType, id, action string, meta models.JSONMap) error {
	if meta == nil {
		meta = models.JSONMap{}
	}
	return tx.AppendEvent(ctx, &models.EventLog{
		ID:         uuid.NewString(),
		Actor:      actorOr(actor),
		EntityType: entity,
		EntityID:   id,
		Action:     action,
		Metadata:   meta,
		CreatedAt:  s.now(),
	})
}

func (s *Service) recompute(ctx context.Context, tx store.Tx, articleID string) (models.DistributionStatus, error) {
	status, err := distribution.Recompute(ctx, tx, articleID)
	if err != nil {
		return "", err
	}
	s.logger.Debug().Str("article_id", articleID).Str("distribution", string(status)).Msg("Recomputed distribution status")
	return status, nil
}

func countTransition(entity models.EntityType, to string) {
	metrics.Transitions.WithLabelValues(string(entity), to).Inc()
}
