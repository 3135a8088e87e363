package model

import (
	"time"
)

// PlaylistVideo represents a single entry of a listed playlist
type PlaylistVideo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Playlist represents a YouTube playlist with its videos
type Playlist struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	URL         string           `json:"url"`
	Videos      []*PlaylistVideo `json:"videos"`
	TotalVideos int              `json:"total_videos"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(id, url string) *Playlist {
	return &Playlist{
		ID:        id,
		URL:       url,
		Videos:    make([]*PlaylistVideo, 0),
		CreatedAt: time.Now(),
	}
}

// AddVideo adds a video to the playlist
func (p *Playlist) AddVideo(video *PlaylistVideo) {
	p.Videos = append(p.Videos, video)
	p.TotalVideos = len(p.Videos)
}
