package download

import (
	"context"
	"time"

	"github.com/ytget/yt-download-proxy/internal/cleanup"
	"github.com/ytget/yt-download-proxy/internal/model"
)

// Progress event tags reported by an Extractor
const (
	ProgressDownloading = "downloading"
	ProgressFinished    = "finished"
)

// ProgressEvent is a single progress report from the extractor.
type ProgressEvent struct {
	Status   string // ProgressDownloading or ProgressFinished
	Percent  string // formatted percentage, e.g. " 45.3%"
	Speed    string
	ETA      string
	Filename string
	Title    string
}

// FetchRequest describes one download handed to an Extractor.
type FetchRequest struct {
	URL            string
	Format         string // yt-dlp format selector
	OutputTemplate string // yt-dlp output template
}

// Extractor is the media-extraction capability the service wraps.
type Extractor interface {
	// Download writes the media for req.URL using req.OutputTemplate and calls
	// onProgress zero or more times before returning.
	Download(ctx context.Context, req FetchRequest, onProgress func(ProgressEvent)) error

	// Info retrieves metadata for url without downloading it.
	Info(ctx context.Context, url string) (*model.MediaInfo, error)
}

// Cleaner removes job directories after a delay.
type Cleaner interface {
	Schedule(dir string) *cleanup.Handle
	Delay() time.Duration
}

// Downloader defines the interface for the download service.
type Downloader interface {
	SetUpdateCallback(func(model.Job))
	Submit(ctx context.Context, url, quality string) (model.Job, error)
	Status(id string) model.Job
	Artifact(id string) (*Artifact, error)
	AwaitArtifact(ctx context.Context, id string, grace time.Duration) (*Artifact, error)
	Cancel(id string) error
	Info(ctx context.Context, url string) (*model.MediaInfo, error)
	TrackedJobs() int
	TempDir() string
	Shutdown(ctx context.Context) error
}
