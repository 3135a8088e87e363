package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ytget/yt-download-proxy/internal/clipboard"
	"github.com/ytget/yt-download-proxy/internal/model"
)

type healthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	TempDir    string `json:"temp_dir"`
	ActiveJobs int    `json:"active_jobs"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		Timestamp:  a.now().UTC().Format(time.RFC3339),
		TempDir:    a.downloads.TempDir(),
		ActiveJobs: a.downloads.TrackedJobs(),
	})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.downloads.Info(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (a *API) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		respondFailure(w, fmt.Errorf("%w: url is required", model.ErrInvalidInput))
		return
	}

	playlist, err := a.playlists.ParsePlaylist(r.Context(), url)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, playlist)
}

func (a *API) handleGetClipboard(w http.ResponseWriter, r *http.Request) {
	value, err := a.clipboard.Get(r.Context())
	if err != nil {
		respondFailure(w, fmt.Errorf("%w: %v", model.ErrInternal, err))
		return
	}
	respondJSON(w, http.StatusOK, value)
}

func (a *API) handleSetClipboard(w http.ResponseWriter, r *http.Request) {
	// Escaped JSON can take up to six bytes per text byte
	limit := int64(a.opts.ClipboardMaxBytes)*6 + 1024
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondFailure(w, fmt.Errorf("%w: text exceeds %d bytes", model.ErrInvalidInput, a.opts.ClipboardMaxBytes))
			return
		}
		respondFailure(w, fmt.Errorf("%w: read body: %v", model.ErrInvalidInput, err))
		return
	}

	text, err := clipboard.ParseText(body, a.opts.ClipboardMaxBytes)
	if err != nil {
		respondFailure(w, err)
		return
	}

	value, err := a.clipboard.Set(r.Context(), text)
	if err != nil {
		a.logger.Error().Err(err).Msg("clipboard write failed")
		respondFailure(w, err)
		return
	}
	a.metrics.ClipboardWrites.Inc()

	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"updated_at": value.UpdatedAt,
	})
}
