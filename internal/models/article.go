package models

import (
	"time"

	"contentflow/pipeline/internal/blocks"
)

// ReviewStatus is shared by articles and assets; each entity has its own transition table.
type ReviewStatus string

const (
	StatusDraft    ReviewStatus = "DRAFT"
	StatusInReview ReviewStatus = "IN_REVIEW"
	StatusApproved ReviewStatus = "APPROVED"
	StatusArchived ReviewStatus = "ARCHIVED"
)

// DistributionStatus is the rollup of an article's publication across its assets.
type DistributionStatus string

const (
	DistributionNotPublished       DistributionStatus = "NOT_PUBLISHED"
	DistributionPartiallyPublished DistributionStatus = "PARTIALLY_PUBLISHED"
	DistributionFullyPublished     DistributionStatus = "FULLY_PUBLISHED"
)

// Article represents a row in the 'articles' table
type Article struct {
	ID                 string             `db:"id" json:"id"`
	Title              string             `db:"title" json:"title"`
	Body               blocks.Sequence    `db:"body" json:"body"`
	PlainText          string             `db:"plain_text" json:"plain_text"`
	Status             ReviewStatus       `db:"status" json:"status"`
	Version            int                `db:"version" json:"version"`
	DistributionStatus DistributionStatus `db:"distribution_status" json:"distribution_status"`
	IdeaID             *string            `db:"idea_id" json:"idea_id,omitempty"`
	AIGenerated        bool               `db:"ai_generated" json:"ai_generated"`
	SEOTitle           string             `db:"seo_title" json:"seo_title"`
	SEODescription     string             `db:"seo_description" json:"seo_description"`
	Slug               string             `db:"slug" json:"slug"`
	ExternalID         *string            `db:"external_id" json:"external_id,omitempty"`
	ExternalURL        *string            `db:"external_url" json:"external_url,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// NewArticle creates a new Article in its initial status
func NewArticle() *Article {
	now := time.Now().UTC()
	return &Article{
		Body:               blocks.Sequence{},
		Status:             StatusDraft,
		Version:            1,
		DistributionStatus: DistributionNotPublished,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
