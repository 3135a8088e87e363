package cleanup

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDelay is how long an artifact directory outlives its first delivery
const DefaultDelay = 60 * time.Second

// Handle tracks one scheduled removal.
type Handle struct {
	dir   string
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
	s     *Scheduler
}

// Dir returns the directory the handle removes
func (h *Handle) Dir() string {
	return h.dir
}

// Done is closed once the removal ran or was cancelled
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel prevents a pending removal. It reports false if the removal already
// started or the handle was cancelled before.
func (h *Handle) Cancel() bool {
	if !h.timer.Stop() {
		return false
	}
	h.s.forget(h)
	h.close()
	return true
}

func (h *Handle) close() {
	h.once.Do(func() { close(h.done) })
}

// Scheduler removes directories after a fixed delay. Removal is best effort:
// failures are logged and never retried.
type Scheduler struct {
	delay    time.Duration
	logger   zerolog.Logger
	mu       sync.Mutex
	pending  map[*Handle]struct{}
	onRemove func(dir string)
}

// NewScheduler creates a scheduler with the given delay
func NewScheduler(delay time.Duration, logger zerolog.Logger) *Scheduler {
	if delay < 0 {
		delay = DefaultDelay
	}
	return &Scheduler{
		delay:   delay,
		logger:  logger,
		pending: make(map[*Handle]struct{}),
	}
}

// SetRemoveCallback sets the function called after each successful removal
func (s *Scheduler) SetRemoveCallback(fn func(dir string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemove = fn
}

// Delay returns the configured removal delay
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule removes dir recursively once the delay elapsed
func (s *Scheduler) Schedule(dir string) *Handle {
	h := &Handle{
		dir:  dir,
		done: make(chan struct{}),
		s:    s,
	}

	s.mu.Lock()
	s.pending[h] = struct{}{}
	h.timer = time.AfterFunc(s.delay, func() { s.run(h) })
	s.mu.Unlock()

	return h
}

// Pending returns the number of removals not yet run
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels all pending removals
func (s *Scheduler) Stop() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.pending))
	for h := range s.pending {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

func (s *Scheduler) run(h *Handle) {
	// The timer may fire before Schedule released the lock
	s.mu.Lock()
	onRemove := s.onRemove
	delete(s.pending, h)
	s.mu.Unlock()
	defer h.close()

	if err := Remove(h.dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", h.dir).Msg("cleanup failed")
		return
	}
	s.logger.Debug().Str("dir", h.dir).Msg("cleanup done")
	if onRemove != nil {
		onRemove(h.dir)
	}
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, h)
}

// Remove deletes dir and everything below it. A missing directory is not an error.
func Remove(dir string) error {
	return os.RemoveAll(dir)
}
