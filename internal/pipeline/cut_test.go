package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/narrationforge/internal/mediaprobe"
)

const fakeFFprobeGoodDuration = `#!/bin/sh
cat <<'EOF'
{"streams":[{"codec_type":"video","codec_name":"h264","pix_fmt":"yuv420p","width":1920,"height":1080,"r_frame_rate":"30/1","duration":"2.5"}],"format":{"format_name":"mov,mp4","duration":"2.5"}}
EOF
`

func writeFakeBinary(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestPipeline(t *testing.T, ffmpegScript string) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	ffmpegPath := writeFakeBinary(t, dir, "ffmpeg", ffmpegScript)
	ffprobePath := writeFakeBinary(t, dir, "ffprobe", fakeFFprobeGoodDuration)
	prober := mediaprobe.New(ffprobePath)
	return New(ffmpegPath, prober), dir
}

func TestCutSegmentFastPathSucceeds(t *testing.T) {
	p, dir := newTestPipeline(t, "#!/bin/sh\nexit 0\n")
	output := filepath.Join(dir, "out.mp4")

	err := p.CutSegment(context.Background(), "in.mp4", output, 0, 2*time.Second, nil)
	require.NoError(t, err)
}

func TestCutSegmentRejectsNonPositiveDuration(t *testing.T) {
	p, dir := newTestPipeline(t, "#!/bin/sh\nexit 0\n")
	err := p.CutSegment(context.Background(), "in.mp4", filepath.Join(dir, "out.mp4"), 0, 0, nil)
	assert.Error(t, err)
}

func TestCutSegmentFallsBackToReencodeWhenFastPathFails(t *testing.T) {
	script := `#!/bin/sh
for a in "$@"; do
  if [ "$a" = "-encoders" ]; then echo "libx264"; exit 0; fi
  if [ "$a" = "-hwaccels" ]; then exit 0; fi
done
for a in "$@"; do
  if [ "$a" = "copy" ]; then exit 1; fi
done
exit 0
`
	p, dir := newTestPipeline(t, script)
	output := filepath.Join(dir, "out.mp4")

	err := p.CutSegment(context.Background(), "in.mp4", output, 0, 2*time.Second, nil)
	require.NoError(t, err)
}
