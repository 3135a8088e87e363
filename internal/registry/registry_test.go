package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-download-proxy/internal/model"
)

func TestRegistry_PutGet(t *testing.T) {
	reg := New(time.Hour)

	_, ok := reg.Get("missing")
	assert.False(t, ok)

	reg.Put(*model.NewJob("job-1", "https://example.com/v", "best"))

	job, ok := reg.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, model.JobStatusStarting, job.Status)
	assert.Equal(t, 1, reg.Len())

	// Put overwrites
	job.Status = model.JobStatusDownloading
	reg.Put(job)
	got, _ := reg.Get("job-1")
	assert.Equal(t, model.JobStatusDownloading, got.Status)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	reg := New(time.Hour)
	reg.Put(*model.NewJob("job-1", "u", "best"))

	job, _ := reg.Get("job-1")
	job.Progress = 99

	stored, _ := reg.Get("job-1")
	assert.Equal(t, float64(0), stored.Progress)
}

func TestRegistry_Update(t *testing.T) {
	reg := New(time.Hour)

	_, ok := reg.Update("missing", func(j *model.Job) { j.Progress = 10 })
	assert.False(t, ok)

	reg.Put(*model.NewJob("job-1", "u", "best"))
	updated, ok := reg.Update("job-1", func(j *model.Job) { j.Progress = 45 })
	require.True(t, ok)
	assert.Equal(t, float64(45), updated.Progress)

	stored, _ := reg.Get("job-1")
	assert.Equal(t, float64(45), stored.Progress)
}

func TestRegistry_ConcurrentWritersAndReaders(t *testing.T) {
	reg := New(time.Hour)

	const jobs = 16
	const ticks = 100

	for i := 0; i < jobs; i++ {
		reg.Put(*model.NewJob(fmt.Sprintf("job-%d", i), "u", "best"))
	}

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for p := 1; p <= ticks; p++ {
				reg.Update(id, func(j *model.Job) { j.Progress = float64(p) })
			}
		}()
		go func() {
			defer wg.Done()
			for p := 0; p < ticks; p++ {
				_, _ = reg.Get(id)
				_ = reg.Len()
			}
		}()
	}
	wg.Wait()

	for _, job := range reg.Snapshot() {
		assert.Equal(t, float64(ticks), job.Progress, job.ID)
	}
}

func TestRegistry_Evict(t *testing.T) {
	reg := New(time.Minute)
	now := time.Now()

	old := model.Job{ID: "old", Status: model.JobStatusFinished, UpdatedAt: now.Add(-2 * time.Minute)}
	oldErr := model.Job{ID: "old-err", Status: model.JobStatusError, UpdatedAt: now.Add(-2 * time.Minute)}
	fresh := model.Job{ID: "fresh", Status: model.JobStatusFinished, UpdatedAt: now}
	stale := model.Job{ID: "active", Status: model.JobStatusDownloading, UpdatedAt: now.Add(-time.Hour)}

	for _, job := range []model.Job{old, oldErr, fresh, stale} {
		reg.Put(job)
	}

	removed := reg.Evict(now)
	assert.Equal(t, 2, removed)

	_, ok := reg.Get("old")
	assert.False(t, ok)
	_, ok = reg.Get("fresh")
	assert.True(t, ok)
	_, ok = reg.Get("active")
	assert.True(t, ok, "active jobs are never evicted")
}

func TestRegistry_IsActive(t *testing.T) {
	reg := New(0)
	reg.Put(model.Job{ID: "a", Status: model.JobStatusDownloading})
	reg.Put(model.Job{ID: "b", Status: model.JobStatusFinished})

	assert.True(t, reg.IsActive("a"))
	assert.False(t, reg.IsActive("b"))
	assert.False(t, reg.IsActive("c"))
}
