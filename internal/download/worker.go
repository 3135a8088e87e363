package download

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ytget/yt-download-proxy/internal/model"
	"github.com/ytget/yt-download-proxy/internal/platform"
	"github.com/ytget/yt-download-proxy/internal/registry"
)

const tracerName = "github.com/ytget/yt-download-proxy/internal/download"

// Messages recorded on jobs that end without an extractor error
const (
	MsgCancelled = "download cancelled"
	MsgTimedOut  = "download timed out"
	MsgNoFile    = "download produced no file"
)

// Worker runs a single download and folds its progress into the registry.
type Worker struct {
	registry  *registry.Registry
	extractor Extractor
	logger    zerolog.Logger
	tracer    trace.Tracer
	notify    func(model.Job)
}

// NewWorker creates a worker writing into reg
func NewWorker(reg *registry.Registry, extractor Extractor, logger zerolog.Logger) *Worker {
	return &Worker{
		registry:  reg,
		extractor: extractor,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		notify:    func(model.Job) {},
	}
}

// Run downloads job.URL into dir and leaves the job in a terminal state.
// The returned error is the extractor failure, if any.
func (w *Worker) Run(ctx context.Context, job model.Job, dir string) error {
	ctx, span := w.tracer.Start(ctx, "download.run", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.quality", job.Quality),
	))
	defer span.End()

	log := w.logger.With().Str("job_id", job.ID).Logger()
	started := time.Now()

	req := FetchRequest{
		URL:            job.URL,
		Format:         ResolveFormat(job.Quality),
		OutputTemplate: filepath.Join(dir, job.ID+".%(ext)s"),
	}
	log.Info().Str("url", req.URL).Str("format", req.Format).Msg("download started")

	err := w.extractor.Download(ctx, req, func(ev ProgressEvent) {
		w.HandleProgress(job.ID, ev)
	})
	if err != nil {
		msg := err.Error()
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			msg = MsgCancelled
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			msg = MsgTimedOut
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		log.Warn().Err(err).Dur("elapsed", time.Since(started)).Msg("download failed")
		w.fail(job.ID, msg)
		return err
	}

	path := w.resolveOutput(job.ID, dir)
	if path == "" {
		span.SetStatus(codes.Error, MsgNoFile)
		log.Warn().Msg(MsgNoFile)
		w.fail(job.ID, MsgNoFile)
		return errors.New(MsgNoFile)
	}

	w.finish(job.ID, path)
	log.Info().Str("file", path).Dur("elapsed", time.Since(started)).Msg("download finished")
	return nil
}

// HandleProgress applies one extractor event to the job record. Downloading
// events whose percentage cannot be parsed are dropped. Progress events never
// make a job terminal; only Run does. Only the first transition to downloading
// is reported to the update callback.
func (w *Worker) HandleProgress(id string, ev ProgressEvent) {
	switch ev.Status {
	case ProgressDownloading:
		percent, ok := ParsePercent(ev.Percent)
		if !ok {
			return
		}
		job, before, ok := w.update(id, func(j *model.Job) {
			j.Status = model.JobStatusDownloading
			j.Progress = percent
			if ev.Speed != "" {
				j.Speed = ev.Speed
			}
			if ev.ETA != "" {
				j.ETA = ev.ETA
			}
			if j.Title == "" && ev.Title != "" {
				j.Title = ev.Title
			}
			j.UpdatedAt = time.Now()
		})
		if ok && before == model.JobStatusStarting {
			w.notify(job)
		}
	case ProgressFinished:
		// Emitted once per stream; merged formats finish several times before
		// the extractor returns, so the job stays non-terminal until Run ends.
		job, before, ok := w.update(id, func(j *model.Job) {
			j.Status = model.JobStatusDownloading
			j.Progress = 100
			if ev.Filename != "" {
				j.Filename = ev.Filename
			}
			j.ETA = ""
			j.UpdatedAt = time.Now()
		})
		if ok && before == model.JobStatusStarting {
			w.notify(job)
		}
	}
}

// update mutates a job unless it already failed and returns the status the
// job had before the change
func (w *Worker) update(id string, fn func(*model.Job)) (model.Job, model.JobStatus, bool) {
	var before model.JobStatus
	var skipped bool
	job, ok := w.registry.Update(id, func(j *model.Job) {
		before = j.Status
		if j.Status == model.JobStatusError {
			skipped = true
			return
		}
		fn(j)
	})
	return job, before, ok && !skipped
}

func (w *Worker) finish(id, path string) {
	if job, _, ok := w.update(id, func(j *model.Job) { j.Finish(path) }); ok {
		w.notify(job)
	}
}

func (w *Worker) fail(id, msg string) {
	job, ok := w.registry.Update(id, func(j *model.Job) {
		j.Fail(msg)
	})
	if ok {
		w.notify(job)
	}
}

// resolveOutput prefers the path reported by the extractor unless it is a
// stream that was merged away, and falls back to scanning the job directory
func (w *Worker) resolveOutput(id, dir string) string {
	if job, ok := w.registry.Get(id); ok && job.Filename != "" {
		name := filepath.Base(job.Filename)
		if _, err := os.Stat(job.Filename); err == nil && !platform.IsPartialFile(name) && !platform.IsFormatFragment(name) {
			return job.Filename
		}
	}
	path, err := platform.FindArtifact(dir, id)
	if err != nil {
		return ""
	}
	return path
}

// ParsePercent parses a formatted percentage such as " 45.3%"
func ParsePercent(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return min(max(value, 0), 100), true
}
