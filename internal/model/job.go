package model

import (
	"fmt"
	"strings"
	"time"
)

// Job is the status record of a single download tracked by the registry
type Job struct {
	ID         string    `json:"id"`
	URL        string    `json:"url,omitempty"`
	Quality    string    `json:"quality,omitempty"`
	Status     JobStatus `json:"status"`
	Progress   float64   `json:"progress"`           // 0 to 100
	Speed      string    `json:"speed,omitempty"`    // human readable speed (e.g., "1.2MB/s")
	ETA        string    `json:"eta,omitempty"`      // human readable ETA (e.g., "01:30")
	Error      string    `json:"error,omitempty"`    // terminal error message
	Filename   string    `json:"filename,omitempty"` // path to the downloaded file
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	CleanupAt  time.Time `json:"cleanup_at,omitzero"` // when the artifact directory is removed
}

// NewJob creates a job record in the starting state
func NewJob(id, url, quality string) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		URL:       url,
		Quality:   quality,
		Status:    JobStatusStarting,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NotFoundJob is the record reported for an unknown identifier
func NotFoundJob(id string) Job {
	return Job{ID: id, Status: JobStatusNotFound}
}

// Finish marks the job as finished with the given output path
func (j *Job) Finish(path string) {
	now := time.Now()
	j.Status = JobStatusFinished
	j.Progress = 100
	if path != "" {
		j.Filename = path
	}
	j.ETA = ""
	j.UpdatedAt = now
	j.FinishedAt = now
}

// Fail marks the job as failed with a human readable message
func (j *Job) Fail(msg string) {
	now := time.Now()
	j.Status = JobStatusError
	j.Error = msg
	j.UpdatedAt = now
	j.FinishedAt = now
}

// ArtifactName returns the file name of the artifact, or the job ID if no file is known
func (j *Job) ArtifactName() string {
	if j.Filename != "" {
		// Support both / and \ separators
		parts := strings.FieldsFunc(j.Filename, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			return parts[len(parts)-1]
		}
	}
	return j.ID
}

// FormatETA returns seconds formatted as hh:mm:ss, or "—" if unknown
func FormatETA(etaSec int) string {
	if etaSec <= 0 {
		return "—"
	}

	hours := etaSec / 3600
	minutes := (etaSec % 3600) / 60
	seconds := etaSec % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// FormatSpeed returns a bytes-per-second rate as a human readable string
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond >= 1024*1024:
		return fmt.Sprintf("%.1fMB/s", bytesPerSecond/1024/1024)
	case bytesPerSecond >= 1024:
		return fmt.Sprintf("%.1fKB/s", bytesPerSecond/1024)
	default:
		return fmt.Sprintf("%.0fB/s", bytesPerSecond)
	}
}
