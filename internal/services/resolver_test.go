package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavith/streamgate/internal/runner"
)

// writeStub writes an executable shell script standing in for the
// extraction tool.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extractor.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const metadataStub = `#!/bin/sh
cat <<'EOF'
{
  "title": "clip",
  "thumbnail": "https://example/thumb.jpg",
  "formats": [
    {"format_id": "22", "ext": "mp4", "resolution": "1280x720", "fps": 30,
     "acodec": "mp4a.40.2", "vcodec": "avc1", "filesize": 1048576, "format_note": "720p"},
    {"format_id": "137", "ext": "mp4", "resolution": "1920x1080",
     "acodec": "none", "vcodec": "avc1", "filesize_approx": 2097152}
  ]
}
EOF
`

func TestResolveFormats(t *testing.T) {
	bin := writeStub(t, metadataStub)
	r := NewResolver(runner.New(bin, 5*time.Second))

	info, err := r.ResolveFormats(context.Background(), "https://example/video")
	require.NoError(t, err)

	assert.Equal(t, "clip", info.Title)
	assert.Equal(t, "https://example/thumb.jpg", info.ThumbnailURL)
	require.Len(t, info.Formats, 2)

	assert.Equal(t, "22", info.Formats[0].FormatID)
	assert.Equal(t, "mp4", info.Formats[0].Extension)
	assert.Equal(t, float64(30), info.Formats[0].FPS)
	assert.Equal(t, "mp4a.40.2", info.Formats[0].AudioCodec)
	assert.Equal(t, int64(1048576), info.Formats[0].SizeBytes)
	assert.Equal(t, "720p", info.Formats[0].Note)

	// "none" codecs are normalized to empty; approx size fills the gap.
	assert.Equal(t, "", info.Formats[1].AudioCodec)
	assert.Equal(t, int64(2097152), info.Formats[1].SizeBytes)
}

func TestResolveFormatsExtractorFails(t *testing.T) {
	bin := writeStub(t, "#!/bin/sh\necho unreachable >&2\nexit 2\n")
	r := NewResolver(runner.New(bin, 5*time.Second))

	_, err := r.ResolveFormats(context.Background(), "https://example/video")
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestResolveFormatsMalformedOutput(t *testing.T) {
	bin := writeStub(t, "#!/bin/sh\necho this is not json\n")
	r := NewResolver(runner.New(bin, 5*time.Second))

	_, err := r.ResolveFormats(context.Background(), "https://example/video")
	assert.ErrorIs(t, err, ErrResolutionFailed)
}
