package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/kestrelmedia/narrationforge/internal/errs"
)

// LoudnessTarget is the two-pass loudnorm target, matching
// audio_normalizer.py's AudioNormalizer defaults.
type LoudnessTarget struct {
	TargetLUFS float64
	MaxPeakDB  float64
}

// DefaultLoudnessTarget is -20 LUFS / -1 dB true peak, the value
// audio_normalizer.py and spec.md §4.9 both use for draft TTS audio.
var DefaultLoudnessTarget = LoudnessTarget{TargetLUFS: -20.0, MaxPeakDB: -1.0}

var loudnormMeasureRe = regexp.MustCompile(`(?s)\{\s*"input_i"\s*:\s*.*?\}`)

type loudnormMeasurement struct {
	InputI       float64
	InputLRA     float64
	InputTP      float64
	InputThresh  float64
	TargetOffset float64
	HasOffset    bool
}

// NormalizeLoudness two-pass-normalizes input's audio to target, writing
// output with the video stream copied unchanged. The first pass measures
// the input's loudness statistics via ffmpeg's loudnorm filter in
// measurement mode; the second pass applies them with `linear=true` for a
// stable result. If measurement fails (or omits target_offset, which the
// second pass needs), it falls back to single-pass loudnorm. Grounded on
// audio_normalizer.py's AudioNormalizer.normalize_video_loudness.
func (p *Pipeline) NormalizeLoudness(ctx context.Context, input, output string, target LoudnessTarget, sampleRate, channels int) error {
	if _, err := os.Stat(input); err != nil {
		return errs.New(err).Component("pipeline.loudnorm").Category(errs.CategoryInput).
			Context("input", input).Build()
	}

	measured, measureErr := p.measureLoudness(ctx, input, target)

	var filter string
	if measureErr != nil || !measured.HasOffset {
		filter = fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=7", target.TargetLUFS, target.MaxPeakDB)
	} else {
		logger.Info("two-pass loudnorm measurement",
			"input_i", measured.InputI, "input_lra", measured.InputLRA,
			"input_tp", measured.InputTP, "offset", measured.TargetOffset)
		filter = fmt.Sprintf(
			"loudnorm=I=%.1f:TP=%.1f:LRA=7:measured_I=%f:measured_LRA=%f:measured_TP=%f:measured_thresh=%f:offset=%f:linear=true",
			target.TargetLUFS, target.MaxPeakDB, measured.InputI, measured.InputLRA, measured.InputTP, measured.InputThresh, measured.TargetOffset,
		)
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-af", filter,
		"-c:v", "copy",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-c:a", "aac", "-b:a", "192k",
		output,
	}
	res := runFFmpeg(ctx, "loudnorm-apply", p.ffmpegPath, args, 0, nil, nil)
	if res.exitErr != nil {
		return errs.New(res.exitErr).Component("pipeline.loudnorm").Category(errs.CategoryMedia).
			Context("input", input).Build()
	}
	return nil
}

func (p *Pipeline) measureLoudness(ctx context.Context, input string, target LoudnessTarget) (loudnormMeasurement, error) {
	filter := fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=7:print_format=json", target.TargetLUFS, target.MaxPeakDB)
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-hide_banner", "-nostats", "-loglevel", "info",
		"-i", input,
		"-af", filter,
		"-f", "null", "-",
	)
	// loudnorm's measurement JSON is written to stderr, not stdout, at info
	// log level.
	out, err := cmd.CombinedOutput()
	if err != nil {
		return loudnormMeasurement{}, errs.New(err).Component("pipeline.loudnorm").Category(errs.CategoryMedia).
			Context("stage", "measure").Build()
	}

	match := loudnormMeasureRe.FindString(string(out))
	if match == "" {
		return loudnormMeasurement{}, errs.Newf("pipeline: loudnorm measurement JSON not found in ffmpeg output").
			Component("pipeline.loudnorm").Category(errs.CategoryMedia).Build()
	}

	var raw struct {
		InputI       string `json:"input_i"`
		InputLRA     string `json:"input_lra"`
		InputTP      string `json:"input_tp"`
		InputThresh  string `json:"input_thresh"`
		TargetOffset string `json:"target_offset"`
	}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return loudnormMeasurement{}, errs.New(err).Component("pipeline.loudnorm").Category(errs.CategoryMedia).
			Context("stage", "parse-measurement").Build()
	}

	m := loudnormMeasurement{
		InputI:      parseFloatOrZero(raw.InputI),
		InputLRA:    parseFloatOrZero(raw.InputLRA),
		InputTP:     parseFloatOrZero(raw.InputTP),
		InputThresh: parseFloatOrZero(raw.InputThresh),
	}
	if raw.TargetOffset != "" {
		m.TargetOffset = parseFloatOrZero(raw.TargetOffset)
		m.HasOffset = true
	}
	return m, nil
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
