package cleanup

// Package cleanup removes job directories: a delayed per-job removal
// scheduler with cancellable handles, and a cron-driven sweeper for the
// temporary storage root that only touches old entries of inactive jobs.
