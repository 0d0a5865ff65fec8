package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/narrationforge/internal/mediaprobe"
)

const fakeFFmpegLoudnormMeasure = `#!/bin/sh
for a in "$@"; do
  case "$a" in
    *print_format=json*)
      cat >&2 <<'EOF'
{"input_i" : "-23.45", "input_lra" : "7.1", "input_tp" : "-3.2", "input_thresh" : "-33.5", "target_offset" : "1.2"}
EOF
      exit 0
      ;;
  esac
done
exit 0
`

const fakeFFmpegLoudnormNoMeasurement = `#!/bin/sh
exit 0
`

func TestNormalizeLoudnessTwoPassWhenMeasurementSucceeds(t *testing.T) {
	dir := t.TempDir()
	ffmpegPath := writeFakeBinary(t, dir, "ffmpeg", fakeFFmpegLoudnormMeasure)
	input := filepath.Join(dir, "in.wav")
	require.NoError(t, os.WriteFile(input, []byte("fake"), 0o644))

	p := New(ffmpegPath, mediaprobe.New(ffmpegPath))
	err := p.NormalizeLoudness(context.Background(), input, filepath.Join(dir, "out.m4a"), DefaultLoudnessTarget, 44100, 2)
	require.NoError(t, err)
}

func TestNormalizeLoudnessFallsBackToSinglePassWhenMeasurementMissing(t *testing.T) {
	dir := t.TempDir()
	ffmpegPath := writeFakeBinary(t, dir, "ffmpeg", fakeFFmpegLoudnormNoMeasurement)
	input := filepath.Join(dir, "in.wav")
	require.NoError(t, os.WriteFile(input, []byte("fake"), 0o644))

	p := New(ffmpegPath, mediaprobe.New(ffmpegPath))
	err := p.NormalizeLoudness(context.Background(), input, filepath.Join(dir, "out.m4a"), DefaultLoudnessTarget, 44100, 2)
	require.NoError(t, err)
}

func TestNormalizeLoudnessRejectsMissingInput(t *testing.T) {
	dir := t.TempDir()
	ffmpegPath := writeFakeBinary(t, dir, "ffmpeg", fakeFFmpegLoudnormMeasure)

	p := New(ffmpegPath, mediaprobe.New(ffmpegPath))
	err := p.NormalizeLoudness(context.Background(), filepath.Join(dir, "missing.wav"), filepath.Join(dir, "out.m4a"), DefaultLoudnessTarget, 44100, 2)
	require.Error(t, err)
}
