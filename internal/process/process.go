// Package process polls feed sources and turns new items into scored ideas.
package process

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/feed"
	"contentflow/pipeline/internal/fingerprint"
	"contentflow/pipeline/internal/metrics"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/scoring"
	"contentflow/pipeline/internal/store"
)

const (
	defaultFeedTimeout = 2 * time.Minute
	maxErrorLength     = 1000
)

// Fetcher retrieves and parses one feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Item, error)
}

// PollResult is the outcome of polling one source.
type PollResult struct {
	SourceID string `json:"source_id"`
	Fetched  int    `json:"fetched"`
	Created  int    `json:"created"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Err      error  `json:"-"`
}

// SourceError is a source-level failure inside a batch.
type SourceError struct {
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

// BatchResult aggregates a multi-source poll. A failing source never fails the batch.
type BatchResult struct {
	Sources []PollResult  `json:"sources"`
	Errors  []SourceError `json:"errors"`
	Created int           `json:"created"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
}

// FeedProcessor polls sources and writes ideas.
type FeedProcessor struct {
	store       store.Store
	fetcher     Fetcher
	scorer      *scoring.Engine
	logger      zerolog.Logger
	WorkerCount int
	FeedTimeout time.Duration
	now         func() time.Time

	created    atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// NewFeedProcessor creates a processor. workerCount bounds how many sources
// are polled at once by PollAll and PollDue; zero or less polls them
// sequentially. Writes are still one transaction per item.
func NewFeedProcessor(st store.Store, fetcher Fetcher, scorer *scoring.Engine, logger zerolog.Logger, workerCount int) (*FeedProcessor, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if fetcher == nil {
		fetcher = feed.NewFetcher()
	}
	if scorer == nil {
		scorer = scoring.New(nil)
	}
	// Sources are polled one after another unless parallelism is asked for.
	if workerCount <= 0 {
		workerCount = 1
	}
	return &FeedProcessor{
		store:       st,
		fetcher:     fetcher,
		scorer:      scorer,
		logger:      logger.With().Str("component", "ingest").Logger(),
		WorkerCount: workerCount,
		FeedTimeout: defaultFeedTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// PollSource polls one source by id. A fetch failure is recorded on the
// source and returned in PollResult.Err; the error return is reserved for
// failures that prevent polling at all.
func (p *FeedProcessor) PollSource(ctx context.Context, sourceID string) (*PollResult, error) {
	if _, err := uuid.Parse(sourceID); err != nil {
		return nil, &editorial.ValidationError{Field: "id", Reason: "must be a UUID"}
	}

	var src *models.Source
	err := p.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		src, err = tx.GetSource(ctx, sourceID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("poll source %s: %w", sourceID, err)
	}
	if src.DeletedAt != nil || !src.Active {
		return nil, &editorial.PreconditionError{Entity: "source", ID: src.ID, Reason: "source is not active"}
	}
	if src.Kind != models.SourceKindFeed {
		return nil, &editorial.PreconditionError{Entity: "source", ID: src.ID, Reason: fmt.Sprintf("%s sources are not polled", src.Kind)}
	}

	res := p.poll(ctx, src)
	return &res, nil
}

// PollAll polls every active feed source.
func (p *FeedProcessor) PollAll(ctx context.Context) (*BatchResult, error) {
	return p.pollMany(ctx, func(models.Source) bool { return true })
}

// PollDue polls the active feed sources whose poll interval has elapsed.
func (p *FeedProcessor) PollDue(ctx context.Context) (*BatchResult, error) {
	now := p.now()
	return p.pollMany(ctx, func(s models.Source) bool {
		if s.LastPolledAt == nil || s.PollIntervalMinutes <= 0 {
			return true
		}
		return !s.LastPolledAt.Add(time.Duration(s.PollIntervalMinutes) * time.Minute).After(now)
	})
}

func (p *FeedProcessor) pollMany(ctx context.Context, due func(models.Source) bool) (*BatchResult, error) {
	var sources []models.Source
	err := p.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		sources, err = tx.ListSources(ctx, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	var queue []models.Source
	for _, s := range sources {
		if s.Kind == models.SourceKindFeed && due(s) {
			queue = append(queue, s)
		}
	}
	p.logger.Info().Int("loaded_sources", len(sources)).Int("queued", len(queue)).Msg("Loaded active sources to poll")

	results := make([]PollResult, len(queue))
	work := make(chan int)
	var wg sync.WaitGroup

	workers := min(p.WorkerCount, len(queue))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = p.poll(ctx, &queue[idx])
			}
		}()
	}

queueLoop:
	for i := range queue {
		select {
		case work <- i:
		case <-ctx.Done():
			p.logger.Info().Err(ctx.Err()).Msg("Context cancelled during source queuing")
			for j := i; j < len(queue); j++ {
				results[j] = PollResult{SourceID: queue[j].ID, Err: ctx.Err()}
			}
			break queueLoop
		}
	}
	close(work)
	wg.Wait()

	batch := &BatchResult{Sources: results, Errors: []SourceError{}}
	for i, r := range results {
		batch.Created += r.Created
		batch.Skipped += r.Skipped
		batch.Failed += r.Failed
		if r.Err != nil {
			batch.Errors = append(batch.Errors, SourceError{SourceID: r.SourceID, URL: queue[i].URL, Error: r.Err.Error()})
		}
	}

	p.logger.Info().
		Int("sources", len(results)).
		Int("created", batch.Created).
		Int("skipped", batch.Skipped).
		Int("failed", batch.Failed).
		Int("source_errors", len(batch.Errors)).
		Msg("Poll batch finished")
	return batch, nil
}

func (p *FeedProcessor) poll(ctx context.Context, src *models.Source) PollResult {
	res := PollResult{SourceID: src.ID}
	log := p.logger.With().Str("source_id", src.ID).Str("url", src.URL).Logger()

	feedCtx, cancel := context.WithTimeout(ctx, p.FeedTimeout)
	defer cancel()

	log.Info().Msg("Polling source")
	items, err := p.fetcher.Fetch(feedCtx, src.URL)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching source")
		metrics.SourceFailures.Inc()
		res.Err = err
		p.recordPoll(ctx, src.ID, 0, err)
		return res
	}
	res.Fetched = len(items)

	for _, item := range items {
		if feedCtx.Err() != nil {
			log.Warn().Err(feedCtx.Err()).Msg("Stopping item processing for source")
			break
		}
		created, err := p.ingestItem(feedCtx, src, item)
		switch {
		case err != nil:
			res.Failed++
			p.failed.Add(1)
			metrics.ItemFailures.Inc()
			log.Warn().Err(err).Str("link", item.Link).Msg("Skipping feed item")
		case created:
			res.Created++
			p.created.Add(1)
			metrics.IdeasCreated.WithLabelValues(string(models.IdeaOriginFeed)).Inc()
		default:
			res.Skipped++
			p.duplicates.Add(1)
			metrics.DuplicatesSkipped.Inc()
		}
	}

	p.recordPoll(ctx, src.ID, len(items), nil)
	log.Info().
		Int("items", len(items)).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Source polled")
	return res
}

// ingestItem stores one item as an idea. It reports false with a nil error
// for duplicates.
func (p *FeedProcessor) ingestItem(ctx context.Context, src *models.Source, item feed.Item) (bool, error) {
	title := strings.TrimSpace(item.Title)
	if fingerprint.Normalize(title) == "" {
		return false, fmt.Errorf("item has no usable title")
	}

	idea := models.NewIdea()
	idea.ID = uuid.NewString()
	idea.Title = title
	idea.Description = strings.TrimSpace(item.Description)
	idea.Origin = models.IdeaOriginFeed
	idea.SourceID = &src.ID
	idea.Fingerprint = fingerprint.Of(title)
	idea.OriginPublishedAt = item.PublishedAt
	if len(src.Tags) > 0 {
		idea.Tags = append(models.StringList{}, src.Tags...)
	}
	link := strings.TrimSpace(item.Link)
	if link != "" {
		idea.OriginURL = &link
	}
	idea.ScoreBreakdown = p.scorer.Score(scoring.Input{
		Title:          idea.Title,
		Description:    idea.Description,
		SourceWeight:   src.Weight,
		SourceCategory: src.Category,
		PublishedAt:    idea.OriginPublishedAt,
	})
	idea.Score = float64(idea.ScoreBreakdown.Total)

	duplicate := false
	err := p.store.WithinTx(ctx, func(tx store.Tx) error {
		existing, err := tx.FindIdeaByFingerprintOrURL(ctx, idea.Fingerprint, link)
		if err != nil {
			return err
		}
		if existing != nil {
			duplicate = true
			return nil
		}
		if err := tx.CreateIdea(ctx, idea); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.EventLog{
			ID:         uuid.NewString(),
			Actor:      models.SystemActor,
			EntityType: models.EntityIdea,
			EntityID:   idea.ID,
			Action:     "idea.created",
			Metadata: models.JSONMap{
				"origin":    string(models.IdeaOriginFeed),
				"source_id": src.ID,
				"score":     idea.ScoreBreakdown.Total,
			},
			CreatedAt: p.now(),
		})
	})
	if err != nil {
		// Another writer inserted the same fingerprint first.
		if store.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	if duplicate {
		return false, nil
	}
	return true, nil
}

// recordPoll stores the poll outcome on the source in its own transaction.
func (p *FeedProcessor) recordPoll(ctx context.Context, sourceID string, itemCount int, pollErr error) {
	var lastErr *string
	if pollErr != nil {
		msg := truncateRunes(pollErr.Error(), maxErrorLength)
		lastErr = &msg
	}

	// Recorded even if the poll itself was cancelled.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	err := p.store.WithinTx(rctx, func(tx store.Tx) error {
		return tx.RecordPoll(rctx, sourceID, p.now(), itemCount, lastErr)
	})
	if err != nil {
		p.logger.Error().Err(err).Str("source_id", sourceID).Msg("Failed to record poll outcome")
	}
}

// Stats returns counters accumulated since the processor was created.
func (p *FeedProcessor) Stats() (created, duplicates, failed int64) {
	return p.created.Load(), p.duplicates.Load(), p.failed.Load()
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
