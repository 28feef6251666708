package apihttp

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-folio/internal/content"
)

// SaveResponse is returned by a successful PUT.
type SaveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ETag    string `json:"etag"`
}

// HandleGetContent serves the stored document for a category, or the JSON
// literal null when nothing has been saved yet.
func (api *API) HandleGetContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cat, err := content.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		api.writeError(ctx, w, http.StatusNotFound, "unknown category")
		return
	}

	doc, err := api.content.Read(ctx, cat)
	switch {
	case errors.Is(err, content.ErrNotFound):
		api.writeJSON(ctx, w, http.StatusOK, nil)
		return
	case err != nil:
		api.loggerFor(ctx).Error(ctx, err, "failed to read content", "category", cat)
		api.writeError(ctx, w, http.StatusInternalServerError, "failed to read content")
		return
	}

	w.Header().Set("ETag", doc.ETag)
	w.Header().Set("Cache-Control", "no-cache")
	if !doc.ModTime.IsZero() {
		w.Header().Set("Last-Modified", doc.ModTime.UTC().Format(http.TimeFormat))
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == doc.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(doc.Raw)
	}
}

// HandlePutContent replaces a category document with the request body.
// An If-Match header makes the write conditional on the current ETag.
func (api *API) HandlePutContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cat, err := content.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		api.writeError(ctx, w, http.StatusNotFound, "unknown category")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.metrics.IncContentWrite(cat.String(), "too_large")
			api.writeError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.writeError(ctx, w, http.StatusBadRequest, "failed to read request body")
		return
	}

	doc, err := api.content.Write(ctx, cat, body, r.Header.Get("If-Match"))
	switch {
	case err == nil:
	case errors.Is(err, content.ErrInvalidDocument):
		api.metrics.IncContentWrite(cat.String(), "invalid")
		api.writeError(ctx, w, http.StatusBadRequest, "invalid JSON document")
		return
	case errors.Is(err, content.ErrVersionConflict):
		api.metrics.IncContentWrite(cat.String(), "conflict")
		api.writeError(ctx, w, http.StatusPreconditionFailed, "content changed since it was loaded")
		return
	default:
		api.metrics.IncContentWrite(cat.String(), "error")
		api.loggerFor(ctx).Error(ctx, err, "failed to save content", "category", cat)
		api.writeError(ctx, w, http.StatusInternalServerError, "failed to save content")
		return
	}

	api.metrics.IncContentWrite(cat.String(), "ok")
	api.loggerFor(ctx).Info(ctx, "content saved",
		"category", cat,
		"bytes", len(doc.Raw),
		"etag", doc.ETag,
	)

	w.Header().Set("ETag", doc.ETag)
	api.writeJSON(ctx, w, http.StatusOK, SaveResponse{
		Success: true,
		Message: cat.String() + " saved",
		ETag:    doc.ETag,
	})
}
