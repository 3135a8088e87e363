package download

import "strings"

// Quality is a user-facing quality selector
type Quality string

const (
	QualityBest           Quality = "best"
	QualityWorst          Quality = "worst"
	QualityBestVideoAudio Quality = "bestvideo+bestaudio"
	Quality720p           Quality = "720p"
	Quality480p           Quality = "480p"
)

// DefaultQuality is used when a request names no quality
const DefaultQuality = QualityBest

// formatSelectors maps quality selectors to yt-dlp format selection policies
var formatSelectors = map[Quality]string{
	QualityBest:           "best",
	QualityWorst:          "worst",
	QualityBestVideoAudio: "bestvideo+bestaudio/best",
	Quality720p:           "best[height<=720]",
	Quality480p:           "best[height<=480]",
}

// NormalizeQuality returns the recognized selector for q, or best
func NormalizeQuality(q string) Quality {
	quality := Quality(strings.ToLower(strings.TrimSpace(q)))
	if _, ok := formatSelectors[quality]; ok {
		return quality
	}
	return DefaultQuality
}

// ResolveFormat maps a quality selector to a yt-dlp format string.
// Unrecognized values resolve like best.
func ResolveFormat(q string) string {
	return formatSelectors[NormalizeQuality(q)]
}

// QualityOptions returns the recognized quality selectors
func QualityOptions() []Quality {
	return []Quality{QualityBest, QualityWorst, QualityBestVideoAudio, Quality720p, Quality480p}
}
