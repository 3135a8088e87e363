package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ytget/yt-download-proxy/internal/model"
	"github.com/ytget/yt-download-proxy/internal/platform"
	"github.com/ytget/yt-download-proxy/internal/registry"
)

// Defaults for Options
const (
	DefaultPollInterval = 100 * time.Millisecond
)

// Options configures the download service
type Options struct {
	TempDir         string
	DefaultQuality  string
	DownloadTimeout time.Duration // zero means unbounded
	PollInterval    time.Duration // grace period polling
}

// Artifact is a finished job's output file
type Artifact struct {
	Job         model.Job
	Path        string
	Name        string
	ContentType string
}

// Service dispatches download jobs to supervised workers
type Service struct {
	registry  *registry.Registry
	extractor Extractor
	cleaner   Cleaner
	worker    *Worker
	opts      Options
	logger    zerolog.Logger
	onUpdate  func(model.Job) // callback for job transitions

	baseCtx context.Context
	stopAll context.CancelFunc

	handlesMutex sync.Mutex
	handles      map[string]context.CancelFunc
	wg           sync.WaitGroup
}

var _ Downloader = (*Service)(nil)

// NewService creates a new download service
func NewService(reg *registry.Registry, extractor Extractor, cleaner Cleaner, opts Options, logger zerolog.Logger) *Service {
	if opts.TempDir == "" {
		opts.TempDir = platform.DefaultTempDir()
	}
	if opts.DefaultQuality == "" {
		opts.DefaultQuality = string(DefaultQuality)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	baseCtx, stopAll := context.WithCancel(context.Background())
	s := &Service{
		registry:  reg,
		extractor: extractor,
		cleaner:   cleaner,
		opts:      opts,
		logger:    logger,
		baseCtx:   baseCtx,
		stopAll:   stopAll,
		handles:   make(map[string]context.CancelFunc),
	}
	s.worker = NewWorker(reg, extractor, logger)
	s.worker.notify = s.notifyUpdate
	return s
}

// SetUpdateCallback sets the callback function for job transitions. It must
// be set before the first Submit.
func (s *Service) SetUpdateCallback(callback func(model.Job)) {
	s.onUpdate = callback
}

// TempDir returns the root of the job directories
func (s *Service) TempDir() string {
	return s.opts.TempDir
}

// TrackedJobs returns the number of jobs in the registry
func (s *Service) TrackedJobs() int {
	return s.registry.Len()
}

// Submit registers a job for url and starts its worker. It returns as soon as
// the worker is launched.
func (s *Service) Submit(ctx context.Context, url, quality string) (model.Job, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return model.Job{}, fmt.Errorf("%w: url is required", model.ErrInvalidInput)
	}
	quality = strings.TrimSpace(quality)
	if quality == "" {
		quality = s.opts.DefaultQuality
	}

	id := generateJobID()
	dir := s.jobDir(id)
	if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
		return model.Job{}, fmt.Errorf("%w: create job directory: %v", model.ErrInternal, err)
	}

	job := model.NewJob(id, url, quality)
	s.registry.Put(*job)
	s.notifyUpdate(*job)

	// Workers outlive the request; keep only its trace
	workerCtx := trace.ContextWithSpanContext(s.baseCtx, trace.SpanContextFromContext(ctx))
	s.startJob(workerCtx, *job, dir)

	s.logger.Info().Str("job_id", id).Str("url", url).Str("quality", quality).Msg("job submitted")
	return *job, nil
}

// startJob launches the worker goroutine for job
func (s *Service) startJob(parent context.Context, job model.Job, dir string) {
	var ctx context.Context
	var cancel context.CancelFunc
	if s.opts.DownloadTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, s.opts.DownloadTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s.handlesMutex.Lock()
	s.handles[job.ID] = cancel
	s.handlesMutex.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.handlesMutex.Lock()
			delete(s.handles, job.ID)
			s.handlesMutex.Unlock()
			cancel()
		}()

		if err := s.worker.Run(ctx, job, dir); err != nil {
			s.scheduleCleanup(job.ID)
		}
	}()
}

// Status returns the job record for id, or a not_found record
func (s *Service) Status(id string) model.Job {
	job, exists := s.registry.Get(id)
	if !exists {
		return model.NotFoundJob(id)
	}
	return job
}

// Artifact returns the output file of a finished job and arms its cleanup
func (s *Service) Artifact(id string) (*Artifact, error) {
	job, exists := s.registry.Get(id)
	if !exists {
		return nil, fmt.Errorf("%w: job %s", model.ErrNotFound, id)
	}

	switch job.Status {
	case model.JobStatusFinished:
	case model.JobStatusError:
		return nil, fmt.Errorf("%w: job %s failed: %s", model.ErrNotReady, id, job.Error)
	default:
		return nil, fmt.Errorf("%w: job %s is %s", model.ErrNotReady, id, job.Status)
	}

	path, err := platform.FindArtifact(s.jobDir(id), id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: artifact for job %s is no longer available", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrInternal, err)
	}

	job = s.scheduleCleanup(id)

	return &Artifact{
		Job:         job,
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: platform.ContentTypeFor(path),
	}, nil
}

// AwaitArtifact waits at most grace for the job to reach a terminal state and
// then returns its artifact. The worker is not stopped when the wait expires.
func (s *Service) AwaitArtifact(ctx context.Context, id string, grace time.Duration) (*Artifact, error) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

wait:
	for {
		job, exists := s.registry.Get(id)
		if !exists {
			return nil, fmt.Errorf("%w: job %s", model.ErrNotFound, id)
		}
		if job.Status.IsFinished() {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			break wait
		case <-ticker.C:
		}
	}

	artifact, err := s.Artifact(id)
	if err != nil {
		return nil, fmt.Errorf("%w: no file was produced within %s: %v", model.ErrInternal, grace, err)
	}
	return artifact, nil
}

// Cancel stops the worker of an active job; the job ends in the error state
func (s *Service) Cancel(id string) error {
	s.handlesMutex.Lock()
	cancel, exists := s.handles[id]
	s.handlesMutex.Unlock()

	if !exists {
		return fmt.Errorf("%w: no active job %s", model.ErrNotFound, id)
	}
	cancel()
	s.logger.Info().Str("job_id", id).Msg("job cancellation requested")
	return nil
}

// Info retrieves metadata for url
func (s *Service) Info(ctx context.Context, url string) (*model.MediaInfo, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", model.ErrInvalidInput)
	}
	info, err := s.extractor.Info(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrieval, err)
	}
	return info, nil
}

// Shutdown cancels all workers and waits for them to return or ctx to expire
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scheduleCleanup arms directory removal for a job once and returns its record
func (s *Service) scheduleCleanup(id string) model.Job {
	var arm bool
	job, _ := s.registry.Update(id, func(j *model.Job) {
		if !j.CleanupAt.IsZero() {
			return
		}
		arm = true
		j.CleanupAt = time.Now().Add(s.cleaner.Delay())
	})
	if arm {
		s.cleaner.Schedule(s.jobDir(id))
	}
	return job
}

func (s *Service) jobDir(id string) string {
	return filepath.Join(s.opts.TempDir, id)
}

// notifyUpdate calls the update callback if set
func (s *Service) notifyUpdate(job model.Job) {
	if s.onUpdate != nil {
		s.onUpdate(job)
	}
}

// generateJobID generates a unique job ID using UUID v7 for time ordering
func generateJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
