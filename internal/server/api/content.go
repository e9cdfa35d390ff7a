package api

import (
	"net/http"

	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/models"
)

type createAssetRequest struct {
	Platform string         `json:"platform"`
	Content  string         `json:"content"`
	Metadata models.JSONMap `json:"metadata"`
	Actor    string         `json:"actor"`
}

type manualPublishRequest struct {
	ExternalURL string `json:"external_url"`
	ExternalID  string `json:"external_id"`
	Actor       string `json:"actor"`
}

type jobTransitionRequest struct {
	Status       string `json:"status"`
	ExternalURL  string `json:"external_url"`
	ExternalID   string `json:"external_id"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Actor        string `json:"actor"`
}

type approvalRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Decision   string `json:"decision"`
	Actor      string `json:"actor"`
	Comment    string `json:"comment"`
}

// PublishResponse is the body of POST /v1/assets/{id}/publish. A job that
// ran and failed is returned alongside the error.
type PublishResponse struct {
	Job   *models.PublishJob `json:"job"`
	Error string             `json:"error,omitempty"`
}

// TransitionArticle changes an article's review status.
func (h *Handler) TransitionArticle(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	article, err := h.editorial.TransitionArticle(r.Context(), r.PathValue("id"), models.ReviewStatus(req.Status), actorOf(r, req.Actor))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, article)
}

// CreateAsset adds a platform asset to an article.
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	asset, err := h.editorial.CreateAsset(r.Context(), editorial.CreateAssetInput{
		ArticleID: r.PathValue("id"),
		Platform:  models.Platform(req.Platform),
		Content:   req.Content,
		Metadata:  req.Metadata,
		Actor:     actorOf(r, req.Actor),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, asset)
}

// TransitionAsset changes an asset's review status.
func (h *Handler) TransitionAsset(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	asset, err := h.editorial.TransitionAsset(r.Context(), r.PathValue("id"), models.ReviewStatus(req.Status), actorOf(r, req.Actor))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, asset)
}

// ManualPublish records an asset that was published by hand.
func (h *Handler) ManualPublish(w http.ResponseWriter, r *http.Request) {
	var req manualPublishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.editorial.ManualPublishAsset(r.Context(), editorial.ManualPublishInput{
		AssetID:     r.PathValue("id"),
		ExternalURL: req.ExternalURL,
		ExternalID:  req.ExternalID,
		Actor:       actorOf(r, req.Actor),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, job)
}

// Publish queues an automated job for an approved asset and runs it.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor := actorOf(r, req.Actor)

	job, err := h.editorial.QueuePublishJob(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ran, err := h.editorial.RunPublishJob(r.Context(), job.ID, actor)
	if err != nil {
		if ran == nil {
			writeError(w, r, err)
			return
		}
		status, resp := classify(err)
		writeJSON(w, r, status, PublishResponse{Job: ran, Error: resp.Error})
		return
	}
	writeJSON(w, r, http.StatusCreated, PublishResponse{Job: ran})
}

// TransitionPublishJob moves a publish job through its lifecycle.
func (h *Handler) TransitionPublishJob(w http.ResponseWriter, r *http.Request) {
	var req jobTransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.editorial.TransitionPublishJob(r.Context(), r.PathValue("id"), editorial.TransitionJobInput{
		To:           models.PublishJobStatus(req.Status),
		ExternalURL:  req.ExternalURL,
		ExternalID:   req.ExternalID,
		ErrorCode:    req.ErrorCode,
		ErrorMessage: req.ErrorMessage,
		Actor:        actorOf(r, req.Actor),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// CreateApproval records a review decision.
func (h *Handler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	approval, err := h.editorial.CreateApproval(r.Context(), editorial.CreateApprovalInput{
		EntityType: models.EntityType(req.EntityType),
		EntityID:   req.EntityID,
		Decision:   models.ApprovalDecision(req.Decision),
		Actor:      actorOf(r, req.Actor),
		Comment:    req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, approval)
}
