package apihttp

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-folio/internal/upload"
)

// multipart parts above this spill to temp files
const uploadMemory = 8 << 20

// UploadResponse describes a stored asset.
type UploadResponse struct {
	Success      bool   `json:"success"`
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// HandleUpload stores the multipart field "file" and returns its public URL.
func (api *API) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.metrics.ObserveUpload("too_large", 0)
			api.writeError(ctx, w, http.StatusRequestEntityTooLarge, upload.ErrTooLarge.Error())
			return
		}
		api.metrics.ObserveUpload("bad_request", 0)
		api.writeError(ctx, w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	asset, err := api.uploads.Save(ctx, firstFile(r, "file"))
	switch {
	case err == nil:
	case errors.Is(err, upload.ErrNoFile):
		api.metrics.ObserveUpload("bad_request", 0)
		api.writeError(ctx, w, http.StatusBadRequest, upload.ErrNoFile.Error())
		return
	case errors.Is(err, upload.ErrTooLarge):
		api.metrics.ObserveUpload("too_large", 0)
		api.writeError(ctx, w, http.StatusRequestEntityTooLarge, upload.ErrTooLarge.Error())
		return
	case errors.Is(err, upload.ErrTypeNotAllowed):
		api.metrics.ObserveUpload("rejected", 0)
		api.writeError(ctx, w, http.StatusBadRequest, upload.ErrTypeNotAllowed.Error())
		return
	default:
		api.metrics.ObserveUpload("error", 0)
		api.loggerFor(ctx).Error(ctx, err, "failed to store upload")
		api.writeError(ctx, w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	api.metrics.ObserveUpload("ok", asset.Size)
	api.loggerFor(ctx).Info(ctx, "upload stored",
		"filename", asset.Filename,
		"content_type", asset.ContentType,
		"size", asset.Size,
		"transcoded", asset.Transcoded,
	)

	api.writeJSON(ctx, w, http.StatusOK, UploadResponse{
		Success:      true,
		URL:          asset.URL,
		Filename:     asset.Filename,
		OriginalName: asset.OriginalName,
		Size:         asset.Size,
	})
}

func firstFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}
