package models

import "time"

// PublishMethod tells whether a human or the pipeline placed the content.
type PublishMethod string

const (
	PublishMethodManual    PublishMethod = "MANUAL"
	PublishMethodAutomated PublishMethod = "AUTOMATED"
)

// PublishJobStatus is the lifecycle status of one publish attempt.
type PublishJobStatus string

const (
	JobQueued    PublishJobStatus = "QUEUED"
	JobRunning   PublishJobStatus = "RUNNING"
	JobSucceeded PublishJobStatus = "SUCCEEDED"
	JobFailed    PublishJobStatus = "FAILED"
	JobPartial   PublishJobStatus = "PARTIAL"
)

// Terminal reports whether no further transition is possible from s.
func (s PublishJobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobPartial
}

// PublishJob represents a row in the 'publish_jobs' table
type PublishJob struct {
	ID           string           `db:"id" json:"id"`
	AssetID      string           `db:"asset_id" json:"asset_id"`
	AssetVersion int              `db:"asset_version" json:"asset_version"`
	Platform     Platform         `db:"platform" json:"platform"`
	Method       PublishMethod    `db:"method" json:"method"`
	Status       PublishJobStatus `db:"status" json:"status"`
	ExternalURL  *string          `db:"external_url" json:"external_url,omitempty"`
	ExternalID   *string          `db:"external_id" json:"external_id,omitempty"`
	ErrorCode    *string          `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}
