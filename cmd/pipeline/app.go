package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"contentflow/pipeline/internal/ai"
	"contentflow/pipeline/internal/cache"
	"contentflow/pipeline/internal/config"
	"contentflow/pipeline/internal/database"
	"contentflow/pipeline/internal/draft"
	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/feed"
	"contentflow/pipeline/internal/lexicon"
	"contentflow/pipeline/internal/process"
	"contentflow/pipeline/internal/publisher"
	"contentflow/pipeline/internal/scoring"
)

type rootOptions struct {
	envFile  string
	logLevel string
	host     string
	port     int
}

// load reads the configuration and applies flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	var files []string
	if o.envFile != "" {
		files = append(files, o.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.host != "" {
		cfg.ServerHost = o.host
	}
	if o.port != 0 {
		cfg.ServerPort = o.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(cfg.Level())
	return cfg, nil
}

func openDB(cfg *config.Config) (*database.DB, error) {
	db, err := database.NewDB(database.NewConfig(cfg.DBDriver, cfg.DBDSN))
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// app is the fully wired pipeline.
type app struct {
	db        *database.DB
	processor *process.FeedProcessor
	drafter   *draft.Orchestrator
	editorial *editorial.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	lex := lexicon.Default()
	if cfg.LexiconPath != "" {
		var err error
		if lex, err = lexicon.Load(cfg.LexiconPath); err != nil {
			return nil, err
		}
	}
	scorer := scoring.New(lex)

	pub, err := newPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	fetcher := feed.NewFetcher(
		feed.WithTimeout(cfg.FetchTimeout),
		feed.WithRateLimit(cfg.FetchRateLimit, cfg.FetchBurst),
	)
	processor, err := process.NewFeedProcessor(db, fetcher, scorer, log.Logger, cfg.WorkerCount)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize feed processor: %w", err)
	}

	completer := ai.NewClient(ai.Config{
		APIKey:     cfg.AIAPIKey,
		BaseURL:    cfg.AIBaseURL,
		Model:      cfg.AIModel,
		Timeout:    cfg.AITimeout,
		MaxRetries: cfg.AIMaxRetries,
	})
	if cfg.AIAPIKey == "" {
		log.Warn().Msg("AI provider not configured; draft generation will fail")
	}

	return &app{
		db:        db,
		processor: processor,
		drafter:   draft.New(db, completer, log.Logger),
		editorial: editorial.NewService(db, scorer, pub, log.Logger),
	}, nil
}

// newPublisher returns nil when no publishing target is configured.
func newPublisher(ctx context.Context, cfg *config.Config) (editorial.Publisher, error) {
	var docs publisher.DocumentStore
	switch cfg.Publisher {
	case config.PublisherNone:
		log.Info().Msg("No publisher configured; automated publishing disabled")
		return nil, nil
	case config.PublisherHTTP:
		docs = publisher.NewHTTPStore(cfg.PublisherURL, cfg.PublisherDataset, cfg.PublisherToken, http.DefaultClient)
	case config.PublisherS3:
		client, err := publisher.NewS3Client(ctx, publisher.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 publisher: %w", err)
		}
		docs = publisher.NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown publisher %q", cfg.Publisher)
	}
	log.Info().Str("publisher", cfg.Publisher).Msg("Publisher configured")
	return publisher.New(docs, cache.NewTTL[string, bool](cfg.PublisherCacheTTL, nil), cfg.SiteURL), nil
}

// Close releases the database.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}
