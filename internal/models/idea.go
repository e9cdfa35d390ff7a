package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// IdeaOrigin tells whether an idea came from a feed or was entered by hand.
type IdeaOrigin string

const (
	IdeaOriginManual IdeaOrigin = "MANUAL"
	IdeaOriginFeed   IdeaOrigin = "FEED"
)

// IdeaStatus is the editorial status of an idea.
type IdeaStatus string

const (
	IdeaStatusNew      IdeaStatus = "NEW"
	IdeaStatusSelected IdeaStatus = "SELECTED"
	IdeaStatusRejected IdeaStatus = "REJECTED"
	IdeaStatusEnriched IdeaStatus = "ENRICHED"
)

// ScoreBreakdown explains how an idea's score was reached.
type ScoreBreakdown struct {
	Source           float64  `json:"source"`
	Recency          float64  `json:"recency"`
	Keywords         float64  `json:"keywords"`
	Category         float64  `json:"category"`
	Penalty          float64  `json:"penalty"`
	Total            int      `json:"total"`
	EffectiveMatches int      `json:"effective_matches"`
	MatchedKeywords  []string `json:"matched_keywords"`
	HighValueMatches []string `json:"high_value_matches"`
	NegativeMatches  []string `json:"negative_matches"`
	AgeHours         *float64 `json:"age_hours,omitempty"`
}

func (b ScoreBreakdown) Value() (driver.Value, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (b *ScoreBreakdown) Scan(value interface{}) error {
	raw, err := rawJSON(value)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*b = ScoreBreakdown{}
		return nil
	}
	return json.Unmarshal(raw, b)
}

// Idea represents a row in the 'ideas' table
type Idea struct {
	ID                string         `db:"id" json:"id"`
	Title             string         `db:"title" json:"title"`
	Description       string         `db:"description" json:"description"`
	Origin            IdeaOrigin     `db:"origin" json:"origin"`
	OriginURL         *string        `db:"origin_url" json:"origin_url,omitempty"`
	SourceID          *string        `db:"source_id" json:"source_id,omitempty"`
	Fingerprint       string         `db:"fingerprint" json:"fingerprint"`
	Score             float64        `db:"score" json:"score"`
	ScoreBreakdown    ScoreBreakdown `db:"score_breakdown" json:"score_breakdown"`
	Tags              StringList     `db:"tags" json:"tags"`
	OriginPublishedAt *time.Time     `db:"origin_published_at" json:"origin_published_at,omitempty"`
	Status            IdeaStatus     `db:"status" json:"status"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// NewIdea creates a new Idea in its initial status
func NewIdea() *Idea {
	now := time.Now().UTC()
	return &Idea{
		Origin:    IdeaOriginManual,
		Status:    IdeaStatusNew,
		Tags:      StringList{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
