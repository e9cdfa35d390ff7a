package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"

	"contentflow/pipeline/internal/ai"
	"contentflow/pipeline/internal/draft"
	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/feed"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/process"
	"contentflow/pipeline/internal/publisher"
	"contentflow/pipeline/internal/server/storage"
	"contentflow/pipeline/internal/store"
	"contentflow/pipeline/internal/workflow"
)

const maxBodyBytes = 1 << 20

// Poller runs ingestion.
type Poller interface {
	PollSource(ctx context.Context, sourceID string) (*process.PollResult, error)
	PollAll(ctx context.Context) (*process.BatchResult, error)
}

// Drafter generates article drafts.
type Drafter interface {
	Generate(ctx context.Context, ideaID, actor string) (*draft.Result, error)
}

// Editorial is the set of state-changing operations exposed over HTTP.
type Editorial interface {
	CreateIdea(ctx context.Context, in editorial.CreateIdeaInput) (*models.Idea, error)
	TransitionIdea(ctx context.Context, id string, to models.IdeaStatus, actor string) (*models.Idea, error)
	TransitionArticle(ctx context.Context, id string, to models.ReviewStatus, actor string) (*models.Article, error)
	CreateAsset(ctx context.Context, in editorial.CreateAssetInput) (*models.Asset, error)
	TransitionAsset(ctx context.Context, id string, to models.ReviewStatus, actor string) (*models.Asset, error)
	ManualPublishAsset(ctx context.Context, in editorial.ManualPublishInput) (*models.PublishJob, error)
	QueuePublishJob(ctx context.Context, assetID, actor string) (*models.PublishJob, error)
	RunPublishJob(ctx context.Context, id, actor string) (*models.PublishJob, error)
	TransitionPublishJob(ctx context.Context, id string, in editorial.TransitionJobInput) (*models.PublishJob, error)
	CreateApproval(ctx context.Context, in editorial.CreateApprovalInput) (*models.Approval, error)
}

// Handler serves the /v1 routes.
type Handler struct {
	ideas     storage.IdeaRepository
	poller    Poller
	drafter   Drafter
	editorial Editorial
}

// NewHandler creates a new handler instance.
func NewHandler(ideas storage.IdeaRepository, poller Poller, drafter Drafter, ed Editorial) *Handler {
	return &Handler{ideas: ideas, poller: poller, drafter: drafter, editorial: ed}
}

// Register adds the /v1 routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sources/poll", h.PollAll)
	mux.HandleFunc("POST /v1/sources/{id}/poll", h.PollSource)

	mux.HandleFunc("GET /v1/ideas", h.GetIdeas)
	mux.HandleFunc("POST /v1/ideas", h.CreateIdea)
	mux.HandleFunc("POST /v1/ideas/{id}/transition", h.TransitionIdea)
	mux.HandleFunc("POST /v1/ideas/{id}/draft", h.GenerateDraft)

	mux.HandleFunc("POST /v1/articles/{id}/transition", h.TransitionArticle)
	mux.HandleFunc("POST /v1/articles/{id}/assets", h.CreateAsset)

	mux.HandleFunc("POST /v1/assets/{id}/transition", h.TransitionAsset)
	mux.HandleFunc("POST /v1/assets/{id}/manual-publish", h.ManualPublish)
	mux.HandleFunc("POST /v1/assets/{id}/publish", h.Publish)

	mux.HandleFunc("POST /v1/publish-jobs/{id}/transition", h.TransitionPublishJob)
	mux.HandleFunc("POST /v1/approvals", h.CreateApproval)
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

// classify maps an operation error to its HTTP status and response body.
func classify(err error) (int, ErrorResponse) {
	var (
		validation   *editorial.ValidationError
		precondition *editorial.PreconditionError
		transition   *workflow.TransitionError
		bad          *badRequest
		rateLimit    *ai.RateLimitError
		aiTimeout    *ai.TimeoutError
		aiProvider   *ai.ProviderError
		unavailable  *publisher.UnavailableError
		feedTimeout  *feed.TimeoutError
		feedStatus   *feed.StatusError
		feedEmpty    *feed.EmptyBodyError
		feedNotXML   *feed.NotXMLError
	)
	resp := ErrorResponse{Error: err.Error()}

	switch {
	case errors.As(err, &bad):
		resp.Kind = "validation"
		return http.StatusBadRequest, resp
	case errors.As(err, &validation):
		resp.Kind, resp.Field = "validation", validation.Field
		return http.StatusBadRequest, resp
	case errors.As(err, &transition):
		resp.Kind, resp.From, resp.To = "precondition", transition.From, transition.To
		return http.StatusConflict, resp
	case errors.As(err, &precondition):
		resp.Kind, resp.From = "precondition", precondition.Current
		return http.StatusConflict, resp
	case errors.Is(err, ai.ErrNotConfigured), errors.Is(err, publisher.ErrNotConfigured):
		resp.Kind = "not_configured"
		return http.StatusServiceUnavailable, resp
	case errors.As(err, &rateLimit):
		resp.Kind = "rate_limited"
		return http.StatusServiceUnavailable, resp
	case errors.As(err, &aiTimeout), errors.As(err, &aiProvider), errors.As(err, &unavailable),
		errors.As(err, &feedTimeout), errors.As(err, &feedStatus), errors.As(err, &feedEmpty), errors.As(err, &feedNotXML):
		resp.Kind = "dependency"
		return http.StatusBadGateway, resp
	}

	switch store.KindOf(err) {
	case store.KindNotFound:
		resp.Kind = "not_found"
		return http.StatusNotFound, resp
	case store.KindConflict:
		resp.Kind = "conflict"
		return http.StatusConflict, resp
	case store.KindConnectionUnavailable, store.KindSchemaMissing:
		resp.Kind = "unavailable"
		return http.StatusServiceUnavailable, resp
	}

	resp.Kind, resp.Error = "internal", http.StatusText(http.StatusInternalServerError)
	return http.StatusInternalServerError, resp
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	log := hlog.FromRequest(r)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		log.Warn().Err(err).Int("status", status).Msg("Request rejected")
	}
	if resp.Kind == "rate_limited" {
		var rl *ai.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
		}
	}
	writeJSON(w, r, status, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonBytes); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing JSON response body to client")
	}
}

// decodeJSON reads an optional JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &badRequest{msg: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

// actorOf prefers the body's actor and falls back to the X-Actor header.
func actorOf(r *http.Request, body string) string {
	if body = strings.TrimSpace(body); body != "" {
		return body
	}
	return strings.TrimSpace(r.Header.Get("X-Actor"))
}

func parseTime(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, &badRequest{msg: fmt.Sprintf("invalid %s: use RFC3339 format (e.g., 2025-03-28T15:00:00Z)", field)}
	}
	t = t.UTC()
	return &t, nil
}
