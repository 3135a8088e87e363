package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ytget/yt-download-proxy/internal/model"
)

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	return json.NewDecoder(r.Body).Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFor maps a classified error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrRetrieval):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondFailure(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err)
}
