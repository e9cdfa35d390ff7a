package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/server/pagination"
	"contentflow/pipeline/internal/server/storage"
)

const defaultLimit = 100
const maxLimit = 1000
const iso8601Format = time.RFC3339

// IdeasResponse is the body of GET /v1/ideas.
type IdeasResponse struct {
	Items      []models.Idea `json:"items"`
	NextCursor *string       `json:"next_cursor,omitempty"`
}

type createIdeaRequest struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	OriginURL         string   `json:"origin_url"`
	SourceID          string   `json:"source_id"`
	Tags              []string `json:"tags"`
	OriginPublishedAt string   `json:"origin_published_at"`
	Actor             string   `json:"actor"`
}

type transitionRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

type actorRequest struct {
	Actor string `json:"actor"`
}

// DraftResponse is the body of POST /v1/ideas/{id}/draft.
type DraftResponse struct {
	Article      *models.Article `json:"article"`
	GenerationID string          `json:"generation_id"`
	Fallback     bool            `json:"fallback"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// GetIdeas pages through ideas in creation order. Either since or cursor is required.
func (h *Handler) GetIdeas(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("Processing ideas request")

	query := r.URL.Query()
	limitStr := query.Get("limit")
	sinceStr := query.Get("since")
	cursorStr := query.Get("cursor")

	limit := defaultLimit
	if limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 || parsedLimit > maxLimit {
			log.Warn().Err(err).Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
			writeError(w, r, &badRequest{msg: fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit)})
			return
		}
		limit = parsedLimit
	}

	q := storage.IdeaQuery{Limit: limit + 1, Status: models.IdeaStatus(query.Get("status"))}
	if s := query.Get("min_score"); s != "" {
		minScore, err := strconv.ParseFloat(s, 64)
		if err != nil || minScore < 0 || minScore > 100 {
			writeError(w, r, &badRequest{msg: "Invalid 'min_score' parameter: must be between 0 and 100"})
			return
		}
		q.MinScore = minScore
	}
	if q.Status != "" && !validIdeaStatus(q.Status) {
		writeError(w, r, &badRequest{msg: fmt.Sprintf("Invalid 'status' parameter: %q", q.Status)})
		return
	}

	if cursorStr != "" {
		ts, id, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			writeError(w, r, &badRequest{msg: "Invalid 'cursor' parameter"})
			return
		}
		q.CursorTimestamp, q.CursorID = &ts, id
	} else if sinceStr != "" {
		parsedSince, err := time.Parse(iso8601Format, sinceStr)
		if err != nil {
			log.Warn().Err(err).Str("since", sinceStr).Msg("Invalid 'since' parameter format")
			writeError(w, r, &badRequest{msg: "Invalid 'since' parameter: use RFC3339 format (e.g., 2025-03-28T15:00:00Z)"})
			return
		}
		utcSince := parsedSince.UTC()
		q.Since = &utcSince
	} else {
		log.Warn().Msg("Missing required parameter: 'since' or 'cursor'")
		writeError(w, r, &badRequest{msg: "Missing required parameter: 'since' or 'cursor'"})
		return
	}

	ideas, err := h.ideas.FetchIdeas(r.Context(), q) // one extra to detect a next page
	if err != nil {
		writeError(w, r, err)
		return
	}

	var nextCursor *string
	if len(ideas) > limit {
		ideas = ideas[:limit]
		last := ideas[len(ideas)-1]
		cursor := pagination.EncodeCursor(last.CreatedAt.UTC(), last.ID)
		nextCursor = &cursor
	}
	if ideas == nil {
		ideas = []models.Idea{}
	}

	writeJSON(w, r, http.StatusOK, IdeasResponse{Items: ideas, NextCursor: nextCursor})
}

// CreateIdea records a manually submitted idea.
func (h *Handler) CreateIdea(w http.ResponseWriter, r *http.Request) {
	var req createIdeaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	publishedAt, err := parseTime("origin_published_at", req.OriginPublishedAt)
	if err != nil {
		writeError(w, r, err)
		return
	}

	idea, err := h.editorial.CreateIdea(r.Context(), editorial.CreateIdeaInput{
		Title:             req.Title,
		Description:       req.Description,
		OriginURL:         req.OriginURL,
		SourceID:          req.SourceID,
		Tags:              req.Tags,
		OriginPublishedAt: publishedAt,
		Actor:             actorOf(r, req.Actor),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, idea)
}

// TransitionIdea changes an idea's status.
func (h *Handler) TransitionIdea(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	idea, err := h.editorial.TransitionIdea(r.Context(), r.PathValue("id"), models.IdeaStatus(req.Status), actorOf(r, req.Actor))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, idea)
}

// GenerateDraft writes an article draft for an idea.
func (h *Handler) GenerateDraft(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.drafter.Generate(r.Context(), r.PathValue("id"), actorOf(r, req.Actor))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := DraftResponse{Article: res.Article, Fallback: res.Fallback, Warnings: res.Warnings}
	if res.Generation != nil {
		resp.GenerationID = res.Generation.ID
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

func validIdeaStatus(s models.IdeaStatus) bool {
	switch s {
	case models.IdeaStatusNew, models.IdeaStatusSelected, models.IdeaStatusRejected, models.IdeaStatusEnriched:
		return true
	}
	return false
}
