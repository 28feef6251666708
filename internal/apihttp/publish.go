package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-folio/internal/publish"
)

type publishRequest struct {
	Message string `json:"message"`
}

// PublishResponse is returned for every publish outcome. On failure Message
// carries the captured output of the failing step.
type PublishResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Files     []string `json:"files,omitempty"`
	Committed bool     `json:"committed"`
	Pushed    bool     `json:"pushed"`
}

// HandlePublish copies the live documents to the static site and commits
// and pushes them. An empty body uses a timestamped commit message.
func (api *API) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.writeJSON(ctx, w, http.StatusBadRequest, PublishResponse{Message: "invalid request body"})
		return
	}

	res, err := api.publisher.Publish(ctx, req.Message)
	var pe *publish.Error
	switch {
	case err == nil:
	case errors.Is(err, publish.ErrInProgress):
		api.metrics.ObservePublish("in_progress", 0, api.now())
		api.writeJSON(ctx, w, http.StatusConflict, PublishResponse{Message: publish.ErrInProgress.Error()})
		return
	case errors.As(err, &pe):
		api.metrics.ObservePublish(string(pe.Step), 0, api.now())
		api.loggerFor(ctx).Error(ctx, err, "publish failed", "step", pe.Step)
		api.writeJSON(ctx, w, http.StatusInternalServerError, PublishResponse{
			Message:   pe.Detail(),
			Files:     res.Files,
			Committed: res.Committed,
		})
		return
	default:
		api.metrics.ObservePublish("error", 0, api.now())
		api.loggerFor(ctx).Error(ctx, err, "publish failed")
		api.writeJSON(ctx, w, http.StatusInternalServerError, PublishResponse{Message: err.Error()})
		return
	}

	result := "published"
	if !res.Committed {
		result = "nothing_to_commit"
	}
	api.metrics.ObservePublish(result, res.Duration, api.now())

	api.writeJSON(ctx, w, http.StatusOK, PublishResponse{
		Success:   true,
		Message:   res.Message,
		Files:     res.Files,
		Committed: res.Committed,
		Pushed:    res.Pushed,
	})
}
