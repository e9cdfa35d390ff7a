package database

import "time"

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	defaultMaxIdleConns    = 12
	defaultMaxOpenConns    = 12
	defaultConnMaxLifetime = time.Hour
)

// Config holds database configuration settings
type Config struct {
	// Driver is DriverSQLite or DriverPostgres.
	Driver string
	// DSN is a file path (or ":memory:") for SQLite and a connection URL for Postgres.
	DSN string

	// Optional settings (will use defaults if not set)
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	CacheSizeKB     int
	BusyTimeoutMS   int
	ReadOnly        bool
	SkipMigrations  bool
}

// NewConfig creates a new database configuration with default values
func NewConfig(driver, dsn string) *Config {
	if driver == "" {
		driver = DriverSQLite
	}
	return &Config{
		Driver:          driver,
		DSN:             dsn,
		ConnMaxLifetime: defaultConnMaxLifetime,
		CacheSizeKB:     -64000, // 64MB
		BusyTimeoutMS:   5000,
	}
}

func (c *Config) inMemory() bool {
	return c.Driver == DriverSQLite && (c.DSN == ":memory:" || c.DSN == "")
}
