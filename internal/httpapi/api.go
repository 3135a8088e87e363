// Package httpapi binds the download service and the clipboard to HTTP.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytget/yt-download-proxy/internal/clipboard"
	"github.com/ytget/yt-download-proxy/internal/download"
	"github.com/ytget/yt-download-proxy/internal/metrics"
	"github.com/ytget/yt-download-proxy/internal/model"
)

// PlaylistLister lists the entries of a playlist URL.
type PlaylistLister interface {
	ParsePlaylist(ctx context.Context, url string) (*model.Playlist, error)
}

// Options controls the HTTP layer.
type Options struct {
	ServiceName        string
	GracePeriod        time.Duration // zero disables the legacy blocking download mode
	ClipboardMaxBytes  int
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// API wires the service dependencies for HTTP handlers.
type API struct {
	downloads download.Downloader
	clipboard clipboard.Store
	playlists PlaylistLister
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	opts      Options
	now       func() time.Time
}

// New initialises the API layer with defaults applied to opts.
func New(downloads download.Downloader, store clipboard.Store, playlists PlaylistLister, m *metrics.Metrics, logger zerolog.Logger, opts Options) (*API, error) {
	if downloads == nil {
		return nil, errors.New("download service is required")
	}
	if store == nil {
		return nil, errors.New("clipboard store is required")
	}
	if playlists == nil {
		return nil, errors.New("playlist lister is required")
	}
	if m == nil {
		m = metrics.New()
	}

	if opts.ServiceName == "" {
		opts.ServiceName = "yt-download-proxy"
	}
	if opts.ClipboardMaxBytes <= 0 {
		opts.ClipboardMaxBytes = clipboard.DefaultMaxBytes
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 100
	}
	if opts.GracePeriod < 0 {
		opts.GracePeriod = 0
	}

	return &API{
		downloads: downloads,
		clipboard: store,
		playlists: playlists,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}, nil
}
