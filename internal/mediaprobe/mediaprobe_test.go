package mediaprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameRateHandlesRational(t *testing.T) {
	assert.InDelta(t, 30.0, parseFrameRate("30/1"), 0.0001)
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, float64(0), parseFrameRate("0/0"))
}

func TestProbeStreamsParsesVideoAndAudio(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "ffprobe")
	json := `{
  "streams": [
    {"codec_type":"video","codec_name":"h264","pix_fmt":"yuv420p","width":1920,"height":1080,"r_frame_rate":"30/1","duration":"12.5"},
    {"codec_type":"audio","codec_name":"aac","sample_rate":"48000","channels":2}
  ],
  "format": {"format_name":"mov,mp4,m4a,3gp,3g2,mj2","duration":"12.5"}
}`
	script := "#!/bin/sh\ncat <<'EOF'\n" + json + "\nEOF\n"
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))

	p := New(scriptPath)
	info, err := p.ProbeStreams(context.Background(), "input.mp4")
	require.NoError(t, err)
	require.NotNil(t, info.Video)
	require.NotNil(t, info.Audio)
	assert.Equal(t, "h264", info.Video.Codec)
	assert.Equal(t, 1920, info.Video.Width)
	assert.Equal(t, "aac", info.Audio.Codec)
	assert.Equal(t, 48000, info.Audio.SampleRate)
	assert.InDelta(t, 12.5, info.Duration, 0.001)
}

func TestHasAudioFalseWhenNoAudioStream(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "ffprobe")
	json := `{"streams":[{"codec_type":"video","codec_name":"h264"}],"format":{"format_name":"mp4","duration":"5.0"}}`
	script := "#!/bin/sh\ncat <<'EOF'\n" + json + "\nEOF\n"
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))

	p := New(scriptPath)
	has, err := p.HasAudio(context.Background(), "input.mp4")
	require.NoError(t, err)
	assert.False(t, has)
}
