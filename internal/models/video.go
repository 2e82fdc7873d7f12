package models

// Format describes one downloadable rendition of a video.
type Format struct {
	FormatID   string  `json:"format_id"`
	Extension  string  `json:"ext"`
	Resolution string  `json:"resolution,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	AudioCodec string  `json:"acodec,omitempty"`
	VideoCodec string  `json:"vcodec,omitempty"`
	SizeBytes  int64   `json:"size_bytes,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// VideoInfo is the normalized result of resolving a source URL.
type VideoInfo struct {
	Title        string   `json:"title"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Formats      []Format `json:"formats"`
}
