// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"contentflow/pipeline/internal/metrics"
	"contentflow/pipeline/internal/server/api"
	"contentflow/pipeline/internal/server/storage"
)

// SchemaChecker reports whether the database is reachable and migrated.
type SchemaChecker interface {
	CheckSchema(ctx context.Context) error
}

// Deps are the services behind the HTTP routes.
type Deps struct {
	Repo      *storage.Repository
	Health    SchemaChecker
	Poller    api.Poller
	Drafter   api.Drafter
	Editorial api.Editorial
	APIKey    string
}

// apiKeyMiddleware checks for the X-API-Key header and validates it against the provided key.
// If key is empty, it allows all requests. Health and metrics stay open.
func apiKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			reqApiKey := r.Header.Get("X-API-Key")
			if reqApiKey == "" {
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}

			if reqApiKey != apiKey {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewHandler builds the routed handler with the logging middleware chain.
func NewHandler(deps Deps, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	api.NewHandler(deps.Repo, deps.Poller, deps.Drafter, deps.Editorial).Register(mux)
	mux.HandleFunc("GET /v1/sources", exportSourcesHandler(deps.Repo))
	mux.HandleFunc("GET /health", healthCheckHandler(deps.Health))
	mux.Handle("GET /metrics", metrics.Handler())

	// Set up middleware chain for logging and request tracking
	h := hlog.NewHandler(logger)(mux)
	h = hlog.MethodHandler("method")(h)
	h = hlog.URLHandler("url")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		idReq, _ := hlog.IDFromRequest(r)

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("req_id", idReq.String()).
			Msg("HTTP Request")
	})(h)

	if deps.APIKey != "" {
		h = apiKeyMiddleware(deps.APIKey)(h)
		logger.Info().Msg("API key authentication enabled")
	} else {
		logger.Info().Msg("API key authentication disabled")
	}
	return h
}

// RunServer starts the HTTP server with graceful shutdown support.
// It returns when ctx is cancelled or the process receives SIGINT or SIGTERM.
func RunServer(ctx context.Context, deps Deps, listenAddr string, logger zerolog.Logger) error {
	logger = logger.With().Str("service", "pipeline-api").Logger()

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           NewHandler(deps, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Draft generation waits on the AI provider.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", listenAddr).Msg("API Server starting")
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErr:
		return err
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-ctx.Done():
		logger.Info().Msg("Context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
		if err := httpServer.Close(); err != nil {
			logger.Error().Err(err).Msg("HTTP server force close error")
		}
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
	if err := <-serverErr; err != nil {
		logger.Error().Err(err).Msg("ListenAndServe error during shutdown")
	}

	logger.Info().Msg("Server exiting.")
	return nil
}

// healthCheckHandler answers 200 when the schema is in place and 503 otherwise.
func healthCheckHandler(db SchemaChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)
		log.Debug().Msg("Health check request received")

		w.Header().Set("Content-Type", "text/plain")
		if db != nil {
			if err := db.CheckSchema(r.Context()); err != nil {
				log.Error().Err(err).Msg("Health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		n, err := w.Write([]byte("OK"))
		if err != nil {
			log.Error().Err(err).Msg("Error writing health check response")
		} else {
			log.Debug().Int("bytes_written", n).Msg("Health check response sent")
		}
	}
}

// exportSourcesHandler returns a handler function that exports all sources
// as a CSV file in the same layout the importer reads.
func exportSourcesHandler(repo storage.SourceRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)
		log.Debug().Msg("Export sources request received")

		sources, err := repo.FetchSources(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to query sources")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=sources.csv")

		csvWriter := csv.NewWriter(w)

		header := []string{"url", "name", "kind", "weight", "category", "tags", "active", "poll_interval_minutes"}
		if err := csvWriter.Write(header); err != nil {
			log.Error().Err(err).Msg("Failed to write CSV header")
			http.Error(w, "Error generating CSV", http.StatusInternalServerError)
			return
		}

		for _, s := range sources {
			record := []string{
				s.URL,
				s.Name,
				string(s.Kind),
				strconv.FormatFloat(s.Weight, 'f', -1, 64),
				s.Category,
				strings.Join(s.Tags, ";"),
				strconv.FormatBool(s.Active),
				strconv.Itoa(s.PollIntervalMinutes),
			}
			if err := csvWriter.Write(record); err != nil {
				log.Error().Err(err).Msg("Failed to write CSV record")
				return
			}
		}

		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Error().Err(err).Msg("Error flushing CSV data")
			return
		}

		log.Info().Int("source_count", len(sources)).Msg("Exported sources as CSV")
	}
}
