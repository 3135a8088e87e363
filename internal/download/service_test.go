package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-download-proxy/internal/cleanup"
	"github.com/ytget/yt-download-proxy/internal/model"
	"github.com/ytget/yt-download-proxy/internal/registry"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// fakeExtractor runs download as the extractor's Download
type fakeExtractor struct {
	download func(ctx context.Context, req FetchRequest, onProgress func(ProgressEvent)) error
	info     func(ctx context.Context, url string) (*model.MediaInfo, error)

	mu       sync.Mutex
	requests []FetchRequest
}

func (f *fakeExtractor) Download(ctx context.Context, req FetchRequest, onProgress func(ProgressEvent)) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.download == nil {
		return nil
	}
	return f.download(ctx, req, onProgress)
}

func (f *fakeExtractor) Info(ctx context.Context, url string) (*model.MediaInfo, error) {
	if f.info == nil {
		return &model.MediaInfo{Title: "test"}, nil
	}
	return f.info(ctx, url)
}

func (f *fakeExtractor) lastRequest() FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// countingCleaner records scheduled directories without removing them
type countingCleaner struct {
	*cleanup.Scheduler
	mu   sync.Mutex
	dirs []string
}

func newCountingCleaner() *countingCleaner {
	return &countingCleaner{Scheduler: cleanup.NewScheduler(time.Hour, zerolog.Nop())}
}

func (c *countingCleaner) Schedule(dir string) *cleanup.Handle {
	c.mu.Lock()
	c.dirs = append(c.dirs, dir)
	c.mu.Unlock()
	return c.Scheduler.Schedule(dir)
}

func (c *countingCleaner) scheduled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dirs...)
}

// writeOutput creates the file the output template names
func writeOutput(t *testing.T, req FetchRequest, ext string) string {
	t.Helper()
	path := strings.Replace(req.OutputTemplate, "%(ext)s", ext, 1)
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
	return path
}

func newTestService(t *testing.T, extractor Extractor) (*Service, *countingCleaner) {
	t.Helper()
	cleaner := newCountingCleaner()
	t.Cleanup(cleaner.Stop)

	svc := NewService(registry.New(registry.DefaultTTL), extractor, cleaner, Options{
		TempDir:      t.TempDir(),
		PollInterval: 5 * time.Millisecond,
	}, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, cleaner
}

func waitTerminal(t *testing.T, svc *Service, id string) model.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.Status(id).Status.IsFinished()
	}, 2*time.Second, 5*time.Millisecond)
	return svc.Status(id)
}

func TestSubmitReturnsStartingJob(t *testing.T) {
	release := make(chan struct{})
	extractor := &fakeExtractor{download: func(ctx context.Context, req FetchRequest, _ func(ProgressEvent)) error {
		<-release
		writeOutput(t, req, "mp4")
		return nil
	}}
	svc, _ := newTestService(t, extractor)

	job, err := svc.Submit(context.Background(), "  "+testURL+"  ", "")
	require.NoError(t, err)
	close(release)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, testURL, job.URL)
	assert.Equal(t, "best", job.Quality)
	assert.Equal(t, model.JobStatusStarting, job.Status)
	assert.Zero(t, job.Progress)
	assert.DirExists(t, filepath.Join(svc.TempDir(), job.ID))

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobStatusFinished, final.Status)
}

func TestSubmitRejectsEmptyURL(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{})

	for _, url := range []string{"", "   "} {
		_, err := svc.Submit(context.Background(), url, "best")
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	}
	assert.Zero(t, svc.TrackedJobs())
}

func TestSubmitIDsAreUnique(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{download: func(_ context.Context, req FetchRequest, _ func(ProgressEvent)) error {
		writeOutput(t, req, "mp4")
		return nil
	}})

	seen := make(map[string]bool)
	for range 20 {
		job, err := svc.Submit(context.Background(), testURL, "best")
		require.NoError(t, err)
		assert.False(t, seen[job.ID], "duplicate id %s", job.ID)
		seen[job.ID] = true
	}
	assert.Equal(t, 20, svc.TrackedJobs())
}

func TestSuccessfulDownload(t *testing.T) {
	extractor := &fakeExtractor{download: func(_ context.Context, req FetchRequest, onProgress func(ProgressEvent)) error {
		onProgress(ProgressEvent{Status: ProgressDownloading, Percent: "45%", Speed: "1.0 MB/s", ETA: "00:10"})
		path := writeOutput(t, req, "mp4")
		onProgress(ProgressEvent{Status: ProgressFinished, Filename: path})
		return nil
	}}
	svc, _ := newTestService(t, extractor)

	var mu sync.Mutex
	var updates []model.JobStatus
	svc.SetUpdateCallback(func(j model.Job) {
		mu.Lock()
		updates = append(updates, j.Status)
		mu.Unlock()
	})

	job, err := svc.Submit(context.Background(), testURL, "720p")
	require.NoError(t, err)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobStatusFinished, final.Status)
	assert.Equal(t, 100.0, final.Progress)
	assert.Equal(t, filepath.Join(svc.TempDir(), job.ID, job.ID+".mp4"), final.Filename)
	assert.Empty(t, final.Error)

	req := extractor.lastRequest()
	assert.Equal(t, "best[height<=720]", req.Format)
	assert.Equal(t, filepath.Join(svc.TempDir(), job.ID, job.ID+".%(ext)s"), req.OutputTemplate)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []model.JobStatus{
		model.JobStatusStarting,
		model.JobStatusDownloading,
		model.JobStatusFinished,
	}, updates)
}

func TestFailedDownload(t *testing.T) {
	extractor := &fakeExtractor{download: func(context.Context, FetchRequest, func(ProgressEvent)) error {
		return errors.New("ERROR: Video unavailable")
	}}
	svc, cleaner := newTestService(t, extractor)

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobStatusError, final.Status)
	assert.Contains(t, final.Error, "Video unavailable")

	require.Eventually(t, func() bool { return len(cleaner.scheduled()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, filepath.Join(svc.TempDir(), job.ID), cleaner.scheduled()[0])

	_, err = svc.Artifact(job.ID)
	assert.ErrorIs(t, err, model.ErrNotReady)
}

func TestDownloadWithoutOutputFails(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{})

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobStatusError, final.Status)
	assert.Equal(t, MsgNoFile, final.Error)
}

func TestStatusUnknownJob(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{})

	job := svc.Status("nope")
	assert.Equal(t, "nope", job.ID)
	assert.Equal(t, model.JobStatusNotFound, job.Status)
	assert.Zero(t, svc.TrackedJobs())
}

func TestArtifact(t *testing.T) {
	release := make(chan struct{})
	extractor := &fakeExtractor{download: func(_ context.Context, req FetchRequest, _ func(ProgressEvent)) error {
		<-release
		writeOutput(t, req, "webm")
		return nil
	}}
	svc, cleaner := newTestService(t, extractor)

	_, err := svc.Artifact("missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)

	_, err = svc.Artifact(job.ID)
	assert.ErrorIs(t, err, model.ErrNotReady)

	close(release)
	waitTerminal(t, svc, job.ID)

	artifact, err := svc.Artifact(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID+".webm", artifact.Name)
	assert.Equal(t, "video/webm", artifact.ContentType)
	assert.FileExists(t, artifact.Path)
	assert.False(t, artifact.Job.CleanupAt.IsZero())

	// A second fetch does not arm another cleanup
	again, err := svc.Artifact(job.ID)
	require.NoError(t, err)
	assert.Equal(t, artifact.Job.CleanupAt, again.Job.CleanupAt)
	assert.Len(t, cleaner.scheduled(), 1)
}

func TestArtifactRemovedDirectory(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{download: func(_ context.Context, req FetchRequest, _ func(ProgressEvent)) error {
		writeOutput(t, req, "mp4")
		return nil
	}})

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)
	waitTerminal(t, svc, job.ID)

	require.NoError(t, os.RemoveAll(filepath.Join(svc.TempDir(), job.ID)))

	_, err = svc.Artifact(job.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestArtifactEmptyDirectory(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{download: func(_ context.Context, req FetchRequest, _ func(ProgressEvent)) error {
		writeOutput(t, req, "mp4")
		return nil
	}})

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)
	final := waitTerminal(t, svc, job.ID)

	require.NoError(t, os.Remove(final.Filename))

	_, err = svc.Artifact(job.ID)
	assert.ErrorIs(t, err, model.ErrInternal)
}

func TestAwaitArtifact(t *testing.T) {
	svc, _ := newTestService(t, &fakeExtractor{download: func(_ context.Context, req FetchRequest, _ func(ProgressEvent)) error {
		time.Sleep(20 * time.Millisecond)
		writeOutput(t, req, "mp4")
		return nil
	}})

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)

	artifact, err := svc.AwaitArtifact(context.Background(), job.ID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, job.ID+".mp4", artifact.Name)
}

func TestAwaitArtifactGraceExpires(t *testing.T) {
	release := make(chan struct{})
	svc, _ := newTestService(t, &fakeExtractor{download: func(_ context.Context, req FetchRequest, _ func(ProgressEvent)) error {
		<-release
		writeOutput(t, req, "mp4")
		return nil
	}})

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)

	_, err = svc.AwaitArtifact(context.Background(), job.ID, 30*time.Millisecond)
	assert.ErrorIs(t, err, model.ErrInternal)

	// The worker keeps running and still reaches a terminal state
	close(release)
	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobStatusFinished, final.Status)
}

func TestCancel(t *testing.T) {
	started := make(chan struct{})
	svc, cleaner := newTestService(t, &fakeExtractor{download: func(ctx context.Context, _ FetchRequest, _ func(ProgressEvent)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})

	assert.ErrorIs(t, svc.Cancel("missing"), model.ErrNotFound)

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)
	<-started

	require.NoError(t, svc.Cancel(job.ID))

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobStatusError, final.Status)
	assert.Equal(t, MsgCancelled, final.Error)
	require.Eventually(t, func() bool { return len(cleaner.scheduled()) == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return errors.Is(svc.Cancel(job.ID), model.ErrNotFound)
	}, time.Second, 5*time.Millisecond)
}

func TestDownloadTimeout(t *testing.T) {
	cleaner := newCountingCleaner()
	t.Cleanup(cleaner.Stop)
	extractor := &fakeExtractor{download: func(ctx context.Context, _ FetchRequest, _ func(ProgressEvent)) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	svc := NewService(registry.New(registry.DefaultTTL), extractor, cleaner, Options{
		TempDir:         t.TempDir(),
		DownloadTimeout: 20 * time.Millisecond,
	}, zerolog.Nop())

	job, err := svc.Submit(context.Background(), testURL, "best")
	require.NoError(t, err)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, MsgTimedOut, final.Error)
	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestShutdownStopsWorkers(t *testing.T) {
	var running atomic.Int32
	svc, _ := newTestService(t, &fakeExtractor{download: func(ctx context.Context, _ FetchRequest, _ func(ProgressEvent)) error {
		running.Add(1)
		defer running.Add(-1)
		<-ctx.Done()
		return ctx.Err()
	}})

	for range 3 {
		_, err := svc.Submit(context.Background(), testURL, "best")
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return running.Load() == 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
	assert.Zero(t, running.Load())
}

func TestInfo(t *testing.T) {
	extractor := &fakeExtractor{info: func(_ context.Context, url string) (*model.MediaInfo, error) {
		if strings.Contains(url, "broken") {
			return nil, errors.New("unsupported URL")
		}
		return &model.MediaInfo{Title: "Video", Duration: 212}, nil
	}}
	svc, _ := newTestService(t, extractor)

	info, err := svc.Info(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, "Video", info.Title)

	_, err = svc.Info(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = svc.Info(context.Background(), "https://broken.example")
	assert.ErrorIs(t, err, model.ErrRetrieval)
	assert.Contains(t, err.Error(), "unsupported URL")
}

func TestArtifactNotServedBetweenMergedStreams(t *testing.T) {
	videoDone := make(chan struct{})
	audioDone := make(chan struct{})
	resumeAudio := make(chan struct{})
	resumeMerge := make(chan struct{})
	extractor := &fakeExtractor{download: func(_ context.Context, req FetchRequest, onProgress func(ProgressEvent)) error {
		video := writeOutput(t, req, "f137.mp4")
		onProgress(ProgressEvent{Status: ProgressDownloading, Percent: "100%"})
		onProgress(ProgressEvent{Status: ProgressFinished, Filename: video})
		close(videoDone)
		<-resumeAudio

		audio := writeOutput(t, req, "f140.m4a")
		onProgress(ProgressEvent{Status: ProgressDownloading, Percent: "100%"})
		onProgress(ProgressEvent{Status: ProgressFinished, Filename: audio})
		close(audioDone)
		<-resumeMerge

		writeOutput(t, req, "mp4")
		_ = os.Remove(video)
		_ = os.Remove(audio)
		return nil
	}}
	svc, cleaner := newTestService(t, extractor)

	job, err := svc.Submit(context.Background(), testURL, "bestvideo+bestaudio")
	require.NoError(t, err)

	<-videoDone
	status := svc.Status(job.ID)
	assert.Equal(t, model.JobStatusDownloading, status.Status)
	assert.False(t, status.Status.IsFinished())
	_, err = svc.Artifact(job.ID)
	assert.ErrorIs(t, err, model.ErrNotReady)

	// A short grace wait must not hand out the video stream
	_, err = svc.AwaitArtifact(context.Background(), job.ID, 20*time.Millisecond)
	assert.ErrorIs(t, err, model.ErrInternal)
	close(resumeAudio)

	<-audioDone
	assert.False(t, svc.Status(job.ID).Status.IsFinished())
	_, err = svc.Artifact(job.ID)
	assert.ErrorIs(t, err, model.ErrNotReady)
	assert.Empty(t, cleaner.scheduled())
	close(resumeMerge)

	final := waitTerminal(t, svc, job.ID)
	assert.Equal(t, model.JobStatusFinished, final.Status)

	artifact, err := svc.Artifact(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID+".mp4", artifact.Name)
	assert.Len(t, cleaner.scheduled(), 1)
}
