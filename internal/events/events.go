// Package events publishes job lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ytget/yt-download-proxy/internal/model"
)

// JobEvent is the payload published for each job transition.
type JobEvent struct {
	JobID     string          `json:"job_id"`
	URL       string          `json:"url"`
	Status    model.JobStatus `json:"status"`
	Progress  float64         `json:"progress"`
	Title     string          `json:"title,omitempty"`
	Filename  string          `json:"filename,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewJobEvent builds the event for job
func NewJobEvent(job model.Job) JobEvent {
	ts := job.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	ev := JobEvent{
		JobID:     job.ID,
		URL:       job.URL,
		Status:    job.Status,
		Progress:  job.Progress,
		Title:     job.Title,
		Error:     job.Error,
		Timestamp: ts,
	}
	if job.Filename != "" {
		ev.Filename = job.ArtifactName()
	}
	return ev
}

// Publisher delivers job events.
type Publisher interface {
	Publish(ctx context.Context, job model.Job) error
	Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, model.Job) error { return nil }
func (Nop) Close()                                   {}

// conn is the subset of *nats.Conn used by NATS
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
	Close()
}

// NATS publishes events to <prefix>.<status> subjects.
type NATS struct {
	conn   conn
	prefix string
	logger zerolog.Logger
}

// Connect creates a NATS publisher connected to url.
func Connect(url, prefix string, logger zerolog.Logger, opts ...nats.Option) (*NATS, error) {
	opts = append([]nats.Option{nats.Name("yt-download-proxy")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATS(nc, prefix, logger), nil
}

func newNATS(c conn, prefix string, logger zerolog.Logger) *NATS {
	return &NATS{conn: c, prefix: prefix, logger: logger}
}

// Subject returns the subject events for status are published on
func (n *NATS) Subject(status model.JobStatus) string {
	return n.prefix + "." + status.String()
}

// Publish encodes the job event as JSON and publishes it.
func (n *NATS) Publish(ctx context.Context, job model.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewJobEvent(job))
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.Subject(job.Status), data); err != nil {
		return fmt.Errorf("publish %s: %w", job.ID, err)
	}
	return nil
}

// Close drains the connection, falling back to a hard close.
func (n *NATS) Close() {
	if n == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn().Err(err).Msg("nats drain failed")
		n.conn.Close()
	}
}
