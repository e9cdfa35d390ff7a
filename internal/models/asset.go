package models

import "time"

// Platform is the destination an asset is rendered for.
type Platform string

const (
	PlatformWebsite    Platform = "WEBSITE"
	PlatformNewsletter Platform = "NEWSLETTER"
	PlatformLinkedIn   Platform = "LINKEDIN"
	PlatformFacebook   Platform = "FACEBOOK"
	PlatformInstagram  Platform = "INSTAGRAM"
	PlatformX          Platform = "X"
	PlatformTelegram   Platform = "TELEGRAM"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWebsite, PlatformNewsletter, PlatformLinkedIn, PlatformFacebook,
		PlatformInstagram, PlatformX, PlatformTelegram:
		return true
	}
	return false
}

// Asset represents a row in the 'assets' table. A new version is a new row.
type Asset struct {
	ID        string       `db:"id" json:"id"`
	ArticleID string       `db:"article_id" json:"article_id"`
	Platform  Platform     `db:"platform" json:"platform"`
	Version   int          `db:"version" json:"version"`
	Content   string       `db:"content" json:"content"`
	Metadata  JSONMap      `db:"metadata" json:"metadata"`
	Status    ReviewStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// NewAsset creates a new Asset in its initial status
func NewAsset() *Asset {
	now := time.Now().UTC()
	return &Asset{
		Version:   1,
		Metadata:  JSONMap{},
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
