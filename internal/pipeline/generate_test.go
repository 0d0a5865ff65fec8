package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/narrationforge/internal/mediaprobe"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/providers"
)

type fixedDurationTTS struct{ duration float64 }

func (f fixedDurationTTS) Synthesize(ctx context.Context, req providers.SpeechRequest) (providers.SpeechResult, error) {
	return providers.SpeechResult{AudioPath: "/tmp/narration.wav", Duration: f.duration}, nil
}

func TestGenerateVideoRunsFullPipelineAndReturnsOutputPath(t *testing.T) {
	dir := t.TempDir()
	ffmpegPath := writeFakeBinary(t, dir, "ffmpeg", "#!/bin/sh\nexit 0\n")
	ffprobePath := writeFakeBinary(t, dir, "ffprobe", fakeFFprobeUniformH264)
	p := New(ffmpegPath, mediaprobe.New(ffprobePath))

	segments := []model.Segment{
		{ID: 1, Start: 0, End: 2 * time.Second, Narration: "Hello there", OST: false},
		{ID: 2, Start: 2 * time.Second, End: 4 * time.Second, OST: true},
	}

	var stages []string
	output := filepath.Join(dir, "final.mp4")
	result, err := p.GenerateVideo(context.Background(), fixedDurationTTS{duration: 2.0}, GenerateRequest{
		VideoPath:      "source.mp4",
		Segments:       segments,
		OutputPath:     output,
		ScriptLanguage: "zh",
	}, nil, func(stage string, percent int) { stages = append(stages, stage) }, nil)

	require.NoError(t, err)
	assert.Equal(t, output, result.OutputPath)
	assert.Contains(t, stages, "cut")
	assert.Contains(t, stages, "tts")
	assert.Contains(t, stages, "align")
	assert.Contains(t, stages, "concat")
}

func TestGenerateVideoRejectsEmptySegments(t *testing.T) {
	dir := t.TempDir()
	ffmpegPath := writeFakeBinary(t, dir, "ffmpeg", "#!/bin/sh\nexit 0\n")
	ffprobePath := writeFakeBinary(t, dir, "ffprobe", fakeFFprobeUniformH264)
	p := New(ffmpegPath, mediaprobe.New(ffprobePath))

	_, err := p.GenerateVideo(context.Background(), fixedDurationTTS{}, GenerateRequest{
		VideoPath:  "source.mp4",
		OutputPath: filepath.Join(dir, "out.mp4"),
	}, nil, nil, nil)
	assert.Error(t, err)
}

func TestGenerateVideoFallsBackToOriginalClipWhenAudioReplacementFails(t *testing.T) {
	dir := t.TempDir()
	// ffmpeg fails only on the audio-replace stage's mux attempt and its
	// libx264 fallback retry, succeeding for cut/tts-irrelevant/concat calls.
	script := `#!/bin/sh
for a in "$@"; do
  if [ "$a" = "192k" ]; then exit 1; fi
done
exit 0
`
	ffmpegPath := writeFakeBinary(t, dir, "ffmpeg", script)
	ffprobePath := writeFakeBinary(t, dir, "ffprobe", fakeFFprobeUniformH264)
	p := New(ffmpegPath, mediaprobe.New(ffprobePath))

	segments := []model.Segment{
		{ID: 1, Start: 0, End: 2 * time.Second, Narration: "Hello", OST: false},
	}
	output := filepath.Join(dir, "final.mp4")
	var warnings []string
	result, err := p.GenerateVideo(context.Background(), fixedDurationTTS{duration: 2.0}, GenerateRequest{
		VideoPath:  "source.mp4",
		Segments:   segments,
		OutputPath: output,
	}, nil, nil, func(stage, message string) { warnings = append(warnings, stage+": "+message) })

	require.NoError(t, err, "a failed audio replacement must fall back to the original clip, not fail the pipeline")
	assert.Equal(t, output, result.OutputPath)
	require.NotEmpty(t, warnings, "the fallback must be reported through the warning callback")
	assert.Contains(t, warnings[0], "segment 1")
}
