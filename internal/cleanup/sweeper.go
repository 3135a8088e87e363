package cleanup

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepSchedule is the cron spec of the temp root sweep
const DefaultSweepSchedule = "@every 1h"

// Sweeper purges stale entries under the temporary storage root. Entries
// younger than the minimum age, and directories named after active jobs, are
// left alone.
type Sweeper struct {
	root     string
	minAge   time.Duration
	isActive func(name string) bool
	logger   zerolog.Logger
	now      func() time.Time
	onRemove func(n int)
}

// NewSweeper creates a sweeper for root. isActive reports whether an entry
// belongs to a job that is still running; it may be nil.
func NewSweeper(root string, minAge time.Duration, isActive func(name string) bool, logger zerolog.Logger) *Sweeper {
	if minAge <= 0 {
		minAge = DefaultDelay
	}
	if isActive == nil {
		isActive = func(string) bool { return false }
	}
	return &Sweeper{
		root:     root,
		minAge:   minAge,
		isActive: isActive,
		logger:   logger,
		now:      time.Now,
	}
}

// SetRemoveCallback sets the function called with the number of entries removed by a sweep
func (s *Sweeper) SetRemoveCallback(fn func(n int)) {
	s.onRemove = fn
}

// Sweep removes stale entries and returns how many were removed. A missing
// root is not an error.
func (s *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := s.now().Add(-s.minAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if s.isActive(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Vanished between ReadDir and Info
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Str("root", s.root).Msg("temp root swept")
		if s.onRemove != nil {
			s.onRemove(removed)
		}
	}
	return removed, errors.Join(errs...)
}
