package platform

// Package platform contains OS and external tooling glue: job directory and
// artifact lookup helpers, MIME detection, and playlist listing via yt-dlp.
