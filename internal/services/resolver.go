package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kavith/streamgate/internal/models"
	"github.com/kavith/streamgate/internal/runner"
)

// Resolver turns a source URL into a normalized list of downloadable
// formats by running the extractor in metadata mode. It performs no
// caching; callers may cache externally.
type Resolver struct {
	run *runner.Runner
}

func NewResolver(run *runner.Runner) *Resolver {
	return &Resolver{run: run}
}

// extractorMetadata mirrors the JSON document the extraction tool emits in
// metadata mode (yt-dlp --dump-json).
type extractorMetadata struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Formats   []struct {
		FormatID       string  `json:"format_id"`
		Ext            string  `json:"ext"`
		Resolution     string  `json:"resolution"`
		FPS            float64 `json:"fps"`
		ACodec         string  `json:"acodec"`
		VCodec         string  `json:"vcodec"`
		Filesize       int64   `json:"filesize"`
		FilesizeApprox int64   `json:"filesize_approx"`
		FormatNote     string  `json:"format_note"`
	} `json:"formats"`
}

// ResolveFormats resolves the URL's downloadable formats.
func (r *Resolver) ResolveFormats(ctx context.Context, url string) (*models.VideoInfo, error) {
	out, err := r.run.RunCapturingJSON(ctx, []string{"--dump-json", "--no-playlist", url})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}

	var meta extractorMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, fmt.Errorf("%w: unexpected metadata shape", ErrResolutionFailed)
	}

	info := &models.VideoInfo{
		Title:        meta.Title,
		ThumbnailURL: meta.Thumbnail,
		Formats:      make([]models.Format, 0, len(meta.Formats)),
	}

	for _, f := range meta.Formats {
		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}
		info.Formats = append(info.Formats, models.Format{
			FormatID:   f.FormatID,
			Extension:  f.Ext,
			Resolution: f.Resolution,
			FPS:        f.FPS,
			AudioCodec: noneToEmpty(f.ACodec),
			VideoCodec: noneToEmpty(f.VCodec),
			SizeBytes:  size,
			Note:       f.FormatNote,
		})
	}
	return info, nil
}

// The extractor reports absent codecs as the literal string "none".
func noneToEmpty(codec string) string {
	if codec == "none" {
		return ""
	}
	return codec
}
