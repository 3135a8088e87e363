package download

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/ytget/yt-download-proxy/internal/model"
)

// DefaultProgressInterval is how often yt-dlp progress is sampled
const DefaultProgressInterval = 500 * time.Millisecond

// YTDLPExtractor implements Extractor on top of the yt-dlp executable.
type YTDLPExtractor struct {
	progressInterval time.Duration
	logger           zerolog.Logger
}

// NewYTDLPExtractor creates an extractor sampling progress every interval
func NewYTDLPExtractor(interval time.Duration, logger zerolog.Logger) *YTDLPExtractor {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &YTDLPExtractor{
		progressInterval: interval,
		logger:           logger,
	}
}

// Install makes sure a yt-dlp executable is available, downloading it if needed
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

// Download implements Extractor
func (e *YTDLPExtractor) Download(ctx context.Context, req FetchRequest, onProgress func(ProgressEvent)) error {
	dl := ytdlp.New().
		NoPlaylist().
		ForceOverwrites().
		Format(req.Format).
		Output(req.OutputTemplate)

	dl.ProgressFunc(e.progressInterval, func(update ytdlp.ProgressUpdate) {
		if ev, ok := progressEvent(&update); ok {
			onProgress(ev)
		}
	})

	res, err := dl.Run(ctx, req.URL)
	if err != nil {
		if res != nil && res.Stderr != "" {
			e.logger.Debug().Str("stderr", res.Stderr).Msg("yt-dlp output")
		}
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}

// Info implements Extractor
func (e *YTDLPExtractor) Info(ctx context.Context, url string) (*model.MediaInfo, error) {
	res, err := ytdlp.New().
		NoPlaylist().
		SkipDownload().
		DumpSingleJSON().
		Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	return ParseMediaInfo(res.Stdout)
}

// ParseMediaInfo extracts the metadata record from yt-dlp's JSON dump
func ParseMediaInfo(raw string) (*model.MediaInfo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid metadata document")
	}

	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("metadata document is not an object")
	}

	return &model.MediaInfo{
		Title:            doc.Get("title").String(),
		Duration:         doc.Get("duration").Float(),
		Uploader:         doc.Get("uploader").String(),
		ViewCount:        doc.Get("view_count").Int(),
		Thumbnail:        doc.Get("thumbnail").String(),
		FormatsAvailable: int(doc.Get("formats.#").Int()),
	}, nil
}

// progressEvent converts a yt-dlp progress update into a ProgressEvent
func progressEvent(update *ytdlp.ProgressUpdate) (ProgressEvent, bool) {
	var ev ProgressEvent
	switch update.Status {
	case ytdlp.ProgressStatusDownloading:
		ev.Status = ProgressDownloading
	case ytdlp.ProgressStatusFinished:
		ev.Status = ProgressFinished
	default:
		return ev, false
	}

	if update.TotalBytes > 0 {
		percent := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
		ev.Percent = fmt.Sprintf("%.1f%%", percent)
	}

	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started)
		if elapsed.Seconds() > 0 {
			ev.Speed = model.FormatSpeed(float64(update.DownloadedBytes) / elapsed.Seconds())
		}
	}

	if eta := update.ETA(); eta > 0 {
		ev.ETA = model.FormatETA(int(eta.Seconds()))
	}

	ev.Filename = update.Filename

	if update.Info != nil && update.Info.Title != nil {
		ev.Title = *update.Info.Title
	}

	return ev, true
}
