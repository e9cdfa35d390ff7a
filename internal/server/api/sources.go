package api

import (
	"net/http"

	"github.com/rs/zerolog/hlog"

	"contentflow/pipeline/internal/process"
)

// PollSource fetches one source now.
func (h *Handler) PollSource(w http.ResponseWriter, r *http.Request) {
	res, err := h.poller.PollSource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// A failed fetch is recorded on the source and reported in the body.
	if res.Err != nil {
		hlog.FromRequest(r).Warn().Err(res.Err).Str("source_id", res.SourceID).Msg("Poll finished with a fetch error")
	}
	writeJSON(w, r, http.StatusOK, newPollResponse(res))
}

// PollAll fetches every active feed source.
func (h *Handler) PollAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.poller.PollAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// PollResponse is the body of POST /v1/sources/{id}/poll.
type PollResponse struct {
	SourceID string `json:"source_id"`
	Fetched  int    `json:"fetched"`
	Created  int    `json:"created"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

func newPollResponse(res *process.PollResult) PollResponse {
	resp := PollResponse{
		SourceID: res.SourceID,
		Fetched:  res.Fetched,
		Created:  res.Created,
		Skipped:  res.Skipped,
		Failed:   res.Failed,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}
