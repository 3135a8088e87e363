package platform

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ytget/ytdlp/v2"

	"github.com/ytget/yt-download-proxy/internal/model"
)

// Timeout constants
const (
	DefaultPlaylistParseTimeout = 30 * time.Second
)

// URL parameters
const (
	PlaylistURLParam       = "list="
	PlaylistParamSeparator = "&"
)

// Default values
const (
	DefaultPlaylistTitle = "Untitled Playlist"
	DefaultTitleSuffix   = " - Playlist"
	MaxTitleLength       = 50
	TitleTruncateSuffix  = "..."
	MinPrefixLength      = 10
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// PlaylistItemsFunc fetches the entries of a playlist by its ID
type PlaylistItemsFunc func(ctx context.Context, playlistID string) ([]*model.PlaylistVideo, error)

// PlaylistParserService lists YouTube playlists
type PlaylistParserService struct {
	timeout time.Duration
	items   PlaylistItemsFunc
}

// NewPlaylistParserService creates a playlist parser backed by the ytdlp library
func NewPlaylistParserService() *PlaylistParserService {
	return &PlaylistParserService{
		timeout: DefaultPlaylistParseTimeout,
		items:   fetchPlaylistItems,
	}
}

// SetTimeout sets the timeout for playlist parsing
func (p *PlaylistParserService) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// SetItemsFunc replaces the playlist fetcher
func (p *PlaylistParserService) SetItemsFunc(fn PlaylistItemsFunc) {
	p.items = fn
}

// ParsePlaylist parses a YouTube playlist URL and returns playlist information
func (p *PlaylistParserService) ParsePlaylist(ctx context.Context, url string) (*model.Playlist, error) {
	if !p.isValidPlaylistURL(url) {
		return nil, fmt.Errorf("%w: invalid playlist URL format: %s", model.ErrInvalidInput, url)
	}

	playlistID, err := p.extractPlaylistID(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	videos, err := p.items(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get playlist items: %v", model.ErrRetrieval, err)
	}

	playlist := model.NewPlaylist(playlistID, url)
	for _, video := range videos {
		playlist.AddVideo(video)
	}
	playlist.Title = p.extractPlaylistTitle(videos)

	return playlist, nil
}

// isValidPlaylistURL checks if the URL is a valid YouTube playlist URL
func (p *PlaylistParserService) isValidPlaylistURL(url string) bool {
	return strings.Contains(url, PlaylistURLParam)
}

// extractPlaylistID extracts the playlist ID from a YouTube playlist URL
func (p *PlaylistParserService) extractPlaylistID(url string) (string, error) {
	// Supported formats:
	// - https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID&start_radio=1
	// - https://www.youtube.com/playlist?list=PLAYLIST_ID
	if !strings.Contains(url, PlaylistURLParam) {
		return "", fmt.Errorf("URL does not contain playlist parameter")
	}

	parts := strings.Split(url, PlaylistURLParam)
	if len(parts) < 2 {
		return "", fmt.Errorf("could not extract playlist ID from URL")
	}

	playlistID := parts[1]
	if strings.Contains(playlistID, PlaylistParamSeparator) {
		playlistID = strings.Split(playlistID, PlaylistParamSeparator)[0]
	}

	if playlistID == "" {
		return "", fmt.Errorf("empty playlist ID")
	}

	return playlistID, nil
}

// extractPlaylistTitle derives a title from the common prefix of the first
// two entries, falling back to the (truncated) first title
func (p *PlaylistParserService) extractPlaylistTitle(videos []*model.PlaylistVideo) string {
	if len(videos) == 0 {
		return DefaultPlaylistTitle
	}

	if len(videos) > 1 {
		prefix := strings.TrimSpace(findCommonPrefix(videos[0].Title, videos[1].Title))
		if len(prefix) > MinPrefixLength {
			return prefix + DefaultTitleSuffix
		}
	}

	firstTitle := videos[0].Title
	if len(firstTitle) > MaxTitleLength {
		firstTitle = firstTitle[:runeBoundary(firstTitle, MaxTitleLength)] + TitleTruncateSuffix
	}
	return firstTitle + DefaultTitleSuffix
}

// findCommonPrefix finds the common prefix between two strings
func findCommonPrefix(s1, s2 string) string {
	minLen := min(len(s1), len(s2))
	for i := 0; i < minLen; i++ {
		if s1[i] != s2[i] {
			return s1[:runeBoundary(s1, i)]
		}
	}
	return s1[:runeBoundary(s1, minLen)]
}

// runeBoundary moves the byte offset n back to the start of the rune it falls in
func runeBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// fetchPlaylistItems lists playlist entries through the ytdlp library
func fetchPlaylistItems(ctx context.Context, playlistID string) ([]*model.PlaylistVideo, error) {
	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}

	videos := make([]*model.PlaylistVideo, 0, len(items))
	for _, it := range items {
		videos = append(videos, &model.PlaylistVideo{
			ID:    it.VideoID,
			Title: it.Title,
			URL:   fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
		})
	}
	return videos, nil
}
