package models

import "time"

// EntityType names the kinds of rows the audit trail and approvals refer to.
type EntityType string

const (
	EntitySource     EntityType = "SOURCE"
	EntityIdea       EntityType = "IDEA"
	EntityArticle    EntityType = "ARTICLE"
	EntityAsset      EntityType = "ASSET"
	EntityPublishJob EntityType = "PUBLISH_JOB"
)

// ApprovalDecision is a reviewer's verdict.
type ApprovalDecision string

const (
	DecisionApprove        ApprovalDecision = "APPROVE"
	DecisionReject         ApprovalDecision = "REJECT"
	DecisionRequestChanges ApprovalDecision = "REQUEST_CHANGES"
)

// Approval represents a row in the append-only 'approvals' table
type Approval struct {
	ID            string           `db:"id" json:"id"`
	EntityType    EntityType       `db:"entity_type" json:"entity_type"`
	EntityID      string           `db:"entity_id" json:"entity_id"`
	EntityVersion int              `db:"entity_version" json:"entity_version"`
	Decision      ApprovalDecision `db:"decision" json:"decision"`
	Actor         string           `db:"actor" json:"actor"`
	Comment       string           `db:"comment" json:"comment"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}
