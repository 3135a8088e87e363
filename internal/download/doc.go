package download

// Package download implements the job pipeline built on top of yt-dlp (via
// github.com/lrstanley/go-ytdlp). The dispatcher registers jobs and launches
// supervised workers; workers fold extractor progress events into the job
// registry; artifacts are served once a job finishes and are removed by the
// cleanup scheduler afterwards.
