package httpapi

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/ytget/yt-download-proxy/internal/download"
	"github.com/ytget/yt-download-proxy/internal/model"
)

type downloadRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

type downloadAccepted struct {
	JobID       string          `json:"job_id"`
	Status      model.JobStatus `json:"status"`
	ProgressURL string          `json:"progress_url"`
	FileURL     string          `json:"file_url"`
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFailure(w, fmt.Errorf("%w: invalid JSON body: %v", model.ErrInvalidInput, err))
		return
	}

	job, err := a.downloads.Submit(r.Context(), req.URL, req.Quality)
	if err != nil {
		respondFailure(w, err)
		return
	}

	if a.opts.GracePeriod > 0 {
		a.serveWithinGrace(w, r, job.ID)
		return
	}

	progressURL := "/progress/" + job.ID
	w.Header().Set("Location", progressURL)
	respondJSON(w, http.StatusAccepted, downloadAccepted{
		JobID:       job.ID,
		Status:      job.Status,
		ProgressURL: progressURL,
		FileURL:     "/download/" + job.ID + "/file",
	})
}

// serveWithinGrace waits for the artifact and streams it, or fails with 500
func (a *API) serveWithinGrace(w http.ResponseWriter, r *http.Request, id string) {
	artifact, err := a.downloads.AwaitArtifact(r.Context(), id, a.opts.GracePeriod)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"job_id": id,
		})
		return
	}
	serveArtifact(w, r, artifact)
}

func (a *API) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	artifact, err := a.downloads.Artifact(chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	serveArtifact(w, r, artifact)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.downloads.Cancel(id); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id": id,
		"status": "cancelling",
	})
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.downloads.Status(chi.URLParam(r, "id")))
}

func serveArtifact(w http.ResponseWriter, r *http.Request, artifact *download.Artifact) {
	f, err := os.Open(artifact.Path)
	if err != nil {
		respondFailure(w, fmt.Errorf("%w: open artifact: %v", model.ErrNotFound, err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondFailure(w, fmt.Errorf("%w: stat artifact: %v", model.ErrInternal, err))
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name}))
	http.ServeContent(w, r, artifact.Name, info.ModTime(), f)
}
