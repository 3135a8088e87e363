// Package registry holds the in-memory table of download jobs shared by the
// dispatcher, its workers and status queries.
package registry

import (
	"sync"
	"time"

	"github.com/ytget/yt-download-proxy/internal/model"
)

// DefaultTTL is how long a terminal job stays queryable after its last update.
const DefaultTTL = time.Hour

// Registry maps job identifiers to job records. Records are copied on the way
// in and out, so callers never share mutable state with the table.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	ttl  time.Duration
}

// New creates an empty registry. Terminal jobs older than ttl are removed by Evict.
func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		jobs: make(map[string]*model.Job),
		ttl:  ttl,
	}
}

// Put inserts or overwrites the record for job.ID
func (r *Registry) Put(job model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = &job
}

// Get returns a copy of the record for id
func (r *Registry) Get(id string) (model.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, exists := r.jobs[id]
	if !exists {
		return model.Job{}, false
	}
	return *job, true
}

// Update applies fn to the record for id under the registry lock and returns
// the updated copy. It reports false if id is unknown.
func (r *Registry) Update(id string, fn func(*model.Job)) (model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, exists := r.jobs[id]
	if !exists {
		return model.Job{}, false
	}
	fn(job)
	return *job, true
}

// Len returns the number of tracked jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Snapshot returns copies of all tracked jobs
func (r *Registry) Snapshot() []model.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]model.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// IsActive reports whether id names a job a worker may still update
func (r *Registry) IsActive(id string) bool {
	job, exists := r.Get(id)
	return exists && job.Status.IsActive()
}

// Evict removes terminal jobs last updated before now minus the TTL and
// returns how many were removed. Active jobs are never evicted.
func (r *Registry) Evict(now time.Time) int {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, job := range r.jobs {
		if job.Status.IsFinished() && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}
