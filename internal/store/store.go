// Package store defines the transactional persistence capability used by the
// pipeline. The sqlx implementation lives in internal/database.
package store

import (
	"context"
	"time"

	"contentflow/pipeline/internal/models"
)

// Store runs units of work. fn's writes commit together when it returns nil
// and roll back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside one transaction.
type Tx interface {
	SourceRepo
	IdeaRepo
	ArticleRepo
	AssetRepo
	PublishJobRepo
	AuditRepo
}

type SourceRepo interface {
	CreateSource(ctx context.Context, s *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	ListSources(ctx context.Context, activeOnly bool) ([]models.Source, error)
	// RecordPoll stores the outcome of a poll. A nil lastErr clears the previous error.
	RecordPoll(ctx context.Context, id string, polledAt time.Time, itemCount int, lastErr *string) error
}

// IdeaFilter narrows ListIdeas. Results are ordered by created_at, id
// ascending and start strictly after the (AfterCreatedAt, AfterID) pair when set.
type IdeaFilter struct {
	Status         models.IdeaStatus
	MinScore       float64
	AfterCreatedAt *time.Time
	AfterID        string
	Limit          int
}

type IdeaRepo interface {
	CreateIdea(ctx context.Context, idea *models.Idea) error
	GetIdea(ctx context.Context, id string) (*models.Idea, error)
	// FindIdeaByFingerprintOrURL returns nil, nil when no idea matches either key.
	FindIdeaByFingerprintOrURL(ctx context.Context, fingerprint, originURL string) (*models.Idea, error)
	ListIdeas(ctx context.Context, filter IdeaFilter) ([]models.Idea, error)
	// UpdateIdeaStatus writes to only when the stored status is still from and
	// returns a Conflict error otherwise.
	UpdateIdeaStatus(ctx context.Context, id string, from, to models.IdeaStatus) error
}

type ArticleRepo interface {
	CreateArticle(ctx context.Context, a *models.Article) error
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	UpdateArticleStatus(ctx context.Context, id string, from, to models.ReviewStatus) error
	SetDistributionStatus(ctx context.Context, id string, status models.DistributionStatus) error
	SetArticleExternal(ctx context.Context, id, externalID, externalURL string) error
}

type AssetRepo interface {
	CreateAsset(ctx context.Context, a *models.Asset) error
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	ListAssetsByArticle(ctx context.Context, articleID string) ([]models.Asset, error)
	// MaxAssetVersion returns 0 when the article has no asset on platform.
	MaxAssetVersion(ctx context.Context, articleID string, platform models.Platform) (int, error)
	UpdateAssetStatus(ctx context.Context, id string, from, to models.ReviewStatus) error
}

type PublishJobRepo interface {
	CreatePublishJob(ctx context.Context, job *models.PublishJob) error
	GetPublishJob(ctx context.Context, id string) (*models.PublishJob, error)
	ListPublishJobsByArticle(ctx context.Context, articleID string) ([]models.PublishJob, error)
	// UpdatePublishJob persists job's mutable fields when the stored status is still from.
	UpdatePublishJob(ctx context.Context, job *models.PublishJob, from models.PublishJobStatus) error
}

type AuditRepo interface {
	AppendEvent(ctx context.Context, e *models.EventLog) error
	CreateApproval(ctx context.Context, a *models.Approval) error
	CreateGeneration(ctx context.Context, g *models.Generation) error
	ListEvents(ctx context.Context, entityType models.EntityType, entityID string) ([]models.EventLog, error)
}
