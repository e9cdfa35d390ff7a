package models

import "time"

// SourceKind describes how a source is polled.
type SourceKind string

const (
	SourceKindFeed   SourceKind = "FEED"
	SourceKindAPI    SourceKind = "API"
	SourceKindScrape SourceKind = "SCRAPE"
	SourceKindManual SourceKind = "MANUAL"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindFeed, SourceKindAPI, SourceKindScrape, SourceKindManual:
		return true
	}
	return false
}

// Source represents a row in the 'sources' table
type Source struct {
	ID                  string     `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Kind                SourceKind `db:"kind" json:"kind"`
	URL                 string     `db:"url" json:"url"`
	Active              bool       `db:"active" json:"active"`
	Weight              float64    `db:"weight" json:"weight"`
	Category            string     `db:"category" json:"category"`
	Tags                StringList `db:"tags" json:"tags"`
	PollIntervalMinutes int        `db:"poll_interval_minutes" json:"poll_interval_minutes"`
	LastPolledAt        *time.Time `db:"last_polled_at" json:"last_polled_at,omitempty"`
	LastItemCount       int        `db:"last_item_count" json:"last_item_count"`
	LastError           *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt           *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// NewSource creates a new active feed Source with default values
func NewSource() *Source {
	now := time.Now().UTC()
	return &Source{
		Kind:                SourceKindFeed,
		Active:              true,
		Weight:              1.0,
		Tags:                StringList{},
		PollIntervalMinutes: 60,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
