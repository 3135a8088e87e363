package cleanup

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Periodic runs maintenance functions on cron schedules.
type Periodic struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewPeriodic creates a stopped scheduler. Runs of the same entry never overlap.
func NewPeriodic(logger zerolog.Logger) *Periodic {
	return &Periodic{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Add registers fn under name on a cron schedule such as "@every 1h"
func (p *Periodic) Add(name, schedule string, fn func()) error {
	_, err := p.cron.AddFunc(schedule, func() {
		p.logger.Debug().Str("task", name).Msg("periodic task")
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, schedule, err)
	}
	return nil
}

// Start begins running registered functions
func (p *Periodic) Start() {
	p.cron.Start()
}

// Stop halts the scheduler and waits for running functions or ctx
func (p *Periodic) Stop(ctx context.Context) {
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
}
