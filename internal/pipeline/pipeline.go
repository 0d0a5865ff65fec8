package pipeline

import "github.com/kestrelmedia/narrationforge/internal/mediaprobe"

// Pipeline bundles the binaries and shared state (encoder detection) used
// by every stage of video generation: cut, loudness normalization, audio
// replacement, and concatenation.
type Pipeline struct {
	ffmpegPath string
	prober     *mediaprobe.Prober
	encoders   *EncoderDetector
}

// New returns a Pipeline that shells out to ffmpegPath (or "ffmpeg" from
// PATH when empty) and uses prober for ffprobe queries.
func New(ffmpegPath string, prober *mediaprobe.Prober) *Pipeline {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Pipeline{
		ffmpegPath: ffmpegPath,
		prober:     prober,
		encoders:   NewEncoderDetector(ffmpegPath),
	}
}
