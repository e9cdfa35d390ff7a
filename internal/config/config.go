package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application. Every field can be
// set through a PIPELINE_-prefixed environment variable or a .env file.
type Config struct {
	// Database
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite3"`
	DBDSN    string `envconfig:"DB_DSN" default:"./pipeline.db"`

	// File paths
	SourcesCSVPath   string `envconfig:"SOURCES_CSV" default:"./sources.csv"`
	RemoteSourcesURL string `envconfig:"REMOTE_SOURCES_URL"`
	LexiconPath      string `envconfig:"LEXICON_PATH"`

	// Server settings
	ServerHost string `envconfig:"SERVER_HOST"`
	ServerPort int    `envconfig:"SERVER_PORT" default:"8080"`
	APIKey     string `envconfig:"API_KEY"`

	// Ingestion settings
	WorkerCount    int           `envconfig:"WORKER_COUNT" default:"1"`
	CronSchedule   string        `envconfig:"CRON_SCHEDULE" default:"*/15 * * * *"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	FetchRateLimit float64       `envconfig:"FETCH_RATE_LIMIT" default:"0"`
	FetchBurst     int           `envconfig:"FETCH_BURST" default:"1"`

	// AI provider
	AIAPIKey     string        `envconfig:"AI_API_KEY"`
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:"https://api.anthropic.com"`
	AIModel      string        `envconfig:"AI_MODEL" default:"claude-sonnet-4-20250514"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"90s"`
	AIMaxRetries int           `envconfig:"AI_MAX_RETRIES" default:"3"` // -1 disables retries

	// Publishing target
	Publisher         string        `envconfig:"PUBLISHER"`
	PublisherURL      string        `envconfig:"PUBLISHER_URL"`
	PublisherDataset  string        `envconfig:"PUBLISHER_DATASET" default:"production"`
	PublisherToken    string        `envconfig:"PUBLISHER_TOKEN"`
	PublisherCacheTTL time.Duration `envconfig:"PUBLISHER_CACHE_TTL" default:"10m"`
	SiteURL           string        `envconfig:"SITE_URL"`
	S3Endpoint        string        `envconfig:"S3_ENDPOINT"`
	S3Region          string        `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey       string        `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey       string        `envconfig:"S3_SECRET_KEY"`
	S3Bucket          string        `envconfig:"S3_BUCKET"`
	S3Prefix          string        `envconfig:"S3_PREFIX" default:"documents"`

	// Log settings
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads .env files (the working directory's .env when none are given)
// and then the environment. Missing .env files are not an error.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks combinations envconfig cannot express.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch c.Publisher {
	case PublisherNone:
	case PublisherHTTP:
		if c.PublisherURL == "" {
			return fmt.Errorf("publisher %q needs PUBLISHER_URL", c.Publisher)
		}
	case PublisherS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("publisher %q needs S3_BUCKET", c.Publisher)
		}
	default:
		return fmt.Errorf("unknown publisher %q", c.Publisher)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
