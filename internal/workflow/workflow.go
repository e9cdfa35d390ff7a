// Package workflow holds the transition tables for ideas, articles, assets
// and publish jobs. Every status change in the pipeline is checked here
// before it is written.
package workflow

import (
	"fmt"

	"contentflow/pipeline/internal/models"
)

// TransitionError reports an illegal status change.
type TransitionError struct {
	Entity models.EntityType
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition from %s to %s", e.Entity, e.From, e.To)
}

var ideaTransitions = map[models.IdeaStatus][]models.IdeaStatus{
	models.IdeaStatusNew:      {models.IdeaStatusSelected, models.IdeaStatusRejected, models.IdeaStatusEnriched},
	models.IdeaStatusSelected: {models.IdeaStatusNew, models.IdeaStatusRejected, models.IdeaStatusEnriched},
	models.IdeaStatusRejected: {models.IdeaStatusNew},
	models.IdeaStatusEnriched: {},
}

var articleTransitions = map[models.ReviewStatus][]models.ReviewStatus{
	models.StatusDraft:    {models.StatusInReview, models.StatusArchived},
	models.StatusInReview: {models.StatusApproved, models.StatusDraft, models.StatusArchived},
	models.StatusApproved: {models.StatusArchived},
	models.StatusArchived: {},
}

var assetTransitions = map[models.ReviewStatus][]models.ReviewStatus{
	models.StatusDraft:    {models.StatusInReview},
	models.StatusInReview: {models.StatusApproved, models.StatusDraft},
	models.StatusApproved: {},
}

var publishJobTransitions = map[models.PublishJobStatus][]models.PublishJobStatus{
	models.JobQueued:    {models.JobRunning},
	models.JobRunning:   {models.JobSucceeded, models.JobFailed, models.JobPartial},
	models.JobSucceeded: {},
	models.JobFailed:    {},
	models.JobPartial:   {},
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validate[S ~string](entity models.EntityType, table map[S][]S, from, to S) error {
	if allowed(table, from, to) {
		return nil
	}
	return &TransitionError{Entity: entity, From: string(from), To: string(to)}
}

func ValidateIdeaTransition(from, to models.IdeaStatus) error {
	return validate(models.EntityIdea, ideaTransitions, from, to)
}

func ValidateArticleTransition(from, to models.ReviewStatus) error {
	return validate(models.EntityArticle, articleTransitions, from, to)
}

func ValidateAssetTransition(from, to models.ReviewStatus) error {
	return validate(models.EntityAsset, assetTransitions, from, to)
}

func ValidatePublishJobTransition(from, to models.PublishJobStatus) error {
	return validate(models.EntityPublishJob, publishJobTransitions, from, to)
}

// IdeaStatuses, ArticleStatuses, AssetStatuses and PublishJobStatuses list
// every state of each machine.
func IdeaStatuses() []models.IdeaStatus {
	return []models.IdeaStatus{models.IdeaStatusNew, models.IdeaStatusSelected, models.IdeaStatusRejected, models.IdeaStatusEnriched}
}

func ArticleStatuses() []models.ReviewStatus {
	return []models.ReviewStatus{models.StatusDraft, models.StatusInReview, models.StatusApproved, models.StatusArchived}
}

func AssetStatuses() []models.ReviewStatus {
	return []models.ReviewStatus{models.StatusDraft, models.StatusInReview, models.StatusApproved}
}

func PublishJobStatuses() []models.PublishJobStatus {
	return []models.PublishJobStatus{models.JobQueued, models.JobRunning, models.JobSucceeded, models.JobFailed, models.JobPartial}
}

// ApprovalTarget maps a reviewer decision to the status it moves the entity to.
func ApprovalTarget(decision models.ApprovalDecision) (models.ReviewStatus, error) {
	switch decision {
	case models.DecisionApprove:
		return models.StatusApproved, nil
	case models.DecisionReject, models.DecisionRequestChanges:
		return models.StatusDraft, nil
	default:
		return "", fmt.Errorf("unknown approval decision %q", decision)
	}
}

// ValidateApproval checks that an entity in current may receive decision and
// returns the status it moves to.
func ValidateApproval(entity models.EntityType, current models.ReviewStatus, decision models.ApprovalDecision) (models.ReviewStatus, error) {
	target, err := ApprovalTarget(decision)
	if err != nil {
		return "", err
	}
	if current != models.StatusInReview {
		return "", &TransitionError{Entity: entity, From: string(current), To: string(target)}
	}
	return target, nil
}

// InitialPublishJobStatus is SUCCEEDED for manual publishes, which record an
// action already taken, and QUEUED for automated ones.
func InitialPublishJobStatus(method models.PublishMethod) models.PublishJobStatus {
	if method == models.PublishMethodManual {
		return models.JobSucceeded
	}
	return models.JobQueued
}
