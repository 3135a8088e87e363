package model

// JobStatus represents the status of a download job
type JobStatus string

const (
	// JobStatusStarting means the job is registered and the worker is being launched
	JobStatusStarting JobStatus = "starting"

	// JobStatusDownloading means the extractor is transferring data
	JobStatusDownloading JobStatus = "downloading"

	// JobStatusFinished means the artifact has been written
	JobStatusFinished JobStatus = "finished"

	// JobStatusError means the job failed; this state is terminal
	JobStatusError JobStatus = "error"

	// JobStatusNotFound is reported for identifiers the registry does not know
	JobStatusNotFound JobStatus = "not_found"
)

// String returns the string representation of JobStatus
func (js JobStatus) String() string {
	return string(js)
}

// IsActive returns true if a worker may still update the job
func (js JobStatus) IsActive() bool {
	return js == JobStatusStarting || js == JobStatusDownloading
}

// IsFinished returns true if the job reached a terminal state (finished or error)
func (js JobStatus) IsFinished() bool {
	return js == JobStatusFinished || js == JobStatusError
}
