// Package distribution derives an article's publication rollup from the
// publish jobs of its assets.
package distribution

import (
	"context"
	"fmt"

	"contentflow/pipeline/internal/models"
)

// AssetJobs is one asset's status with the jobs recorded against it.
type AssetJobs struct {
	Status models.ReviewStatus
	Jobs   []models.PublishJobStatus
}

// Compute applies the rollup rule. Any succeeded job means the article is at
// least partially published; it is fully published only when at least one
// asset is approved and every approved asset has a succeeded job.
func Compute(assets []AssetJobs) models.DistributionStatus {
	anySucceeded := false
	approved := 0
	approvedPublished := 0

	for _, a := range assets {
		succeeded := hasSuccess(a.Jobs)
		if succeeded {
			anySucceeded = true
		}
		if a.Status == models.StatusApproved {
			approved++
			if succeeded {
				approvedPublished++
			}
		}
	}

	switch {
	case !anySucceeded:
		return models.DistributionNotPublished
	case approved > 0 && approvedPublished == approved:
		return models.DistributionFullyPublished
	default:
		return models.DistributionPartiallyPublished
	}
}

func hasSuccess(jobs []models.PublishJobStatus) bool {
	for _, j := range jobs {
		if j == models.JobSucceeded {
			return true
		}
	}
	return false
}

// Repo is the slice of a store transaction Recompute needs.
type Repo interface {
	ListAssetsByArticle(ctx context.Context, articleID string) ([]models.Asset, error)
	ListPublishJobsByArticle(ctx context.Context, articleID string) ([]models.PublishJob, error)
	SetDistributionStatus(ctx context.Context, id string, status models.DistributionStatus) error
}

// Recompute reloads the article's assets and jobs through tx and persists
// the derived status. It must run in the same transaction as the change
// that triggered it.
func Recompute(ctx context.Context, tx Repo, articleID string) (models.DistributionStatus, error) {
	assets, err := tx.ListAssetsByArticle(ctx, articleID)
	if err != nil {
		return "", fmt.Errorf("list assets: %w", err)
	}
	jobs, err := tx.ListPublishJobsByArticle(ctx, articleID)
	if err != nil {
		return "", fmt.Errorf("list publish jobs: %w", err)
	}

	byAsset := make(map[string][]models.PublishJobStatus, len(assets))
	for _, j := range jobs {
		byAsset[j.AssetID] = append(byAsset[j.AssetID], j.Status)
	}

	input := make([]AssetJobs, 0, len(assets))
	for _, a := range assets {
		input = append(input, AssetJobs{Status: a.Status, Jobs: byAsset[a.ID]})
	}

	status := Compute(input)
	if err := tx.SetDistributionStatus(ctx, articleID, status); err != nil {
		return "", fmt.Errorf("set distribution status: %w", err)
	}
	return status, nil
}
