package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/hlog"

	"github.com/ytget/yt-download-proxy/internal/telemetry"
)

// Routes constructs the chi router containing all endpoints.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(a.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	allowed := a.opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition", "Location"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(a.opts.RateLimitPerMinute, time.Minute))

		r.Get("/info", a.handleInfo)
		r.Get("/playlist", a.handlePlaylist)
		r.Get("/progress/{id}", a.handleProgress)

		r.Post("/download", a.handleDownload)
		r.Get("/download/{id}/file", a.handleDownloadFile)
		r.Delete("/download/{id}", a.handleCancel)

		r.Get("/clipboard", a.handleGetClipboard)
		r.Post("/clipboard", a.handleSetClipboard)
	})

	return telemetry.Middleware(a.opts.ServiceName)(r)
}
