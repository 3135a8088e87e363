package model

// MediaInfo is the metadata record returned by the extractor for a source URL
type MediaInfo struct {
	Title            string  `json:"title"`
	Duration         float64 `json:"duration"`
	Uploader         string  `json:"uploader"`
	ViewCount        int64   `json:"view_count"`
	Thumbnail        string  `json:"thumbnail"`
	FormatsAvailable int     `json:"formats_available"`
}
