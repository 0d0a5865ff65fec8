package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/errs"
)

// minValidDuration is the probed-output-duration floor below which a cut is
// considered to have failed, matching video_processor.py's `dur > 0.01`
// check after the fast-path cut.
const minValidDuration = 10 * time.Millisecond

// CutSegment extracts [start, start+duration) from input into output.
// It first tries the fast keyframe-aligned path (`-ss` before `-i`,
// `-c copy`); if that fails or produces a suspiciously short file, it falls
// back to re-encoding with the pipeline's first-priority encoder, placing
// `-ss`/`-t` after `-i` so the cut lands exactly on the requested boundary.
// Grounded on video_processor.py's cut_video_segment.
func (p *Pipeline) CutSegment(ctx context.Context, input, output string, start, duration time.Duration, hook *CancelHook) error {
	if duration <= 0 {
		return errs.Newf("pipeline: cut duration must be positive, got %s", duration).
			Component("pipeline.cut").Category(errs.CategoryInput).Build()
	}

	fastArgs := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", input,
		"-c", "copy",
		"-y", output,
	}
	res := runFFmpeg(ctx, "cut-fast", p.ffmpegPath, fastArgs, 0, hook, nil)
	if res.exitErr == nil {
		if dur, err := p.prober.Duration(ctx, output); err == nil && time.Duration(dur*float64(time.Second)) > minValidDuration {
			return nil
		}
	}
	logger.Warn("fast cut failed or produced empty output, falling back to re-encode", "input", input, "start", start)

	enc := p.encoders.Priority(ctx)[0]
	reencodeArgs := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", input,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
	}
	reencodeArgs = append(reencodeArgs, enc.Args...)
	reencodeArgs = append(reencodeArgs,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k", "-ar", "48000",
		"-movflags", "+faststart",
		"-y", output,
	)
	res2 := runFFmpeg(ctx, "cut-reencode", p.ffmpegPath, reencodeArgs, duration, hook, nil)
	if res2.exitErr != nil {
		return errs.New(res2.exitErr).Component("pipeline.cut").Category(errs.CategoryMedia).
			Context("input", input).Context("stage", "reencode").Build()
	}
	dur, err := p.prober.Duration(ctx, output)
	if err != nil || time.Duration(dur*float64(time.Second)) <= minValidDuration {
		return errs.Newf("pipeline: re-encoded cut produced zero-duration output for %s", input).
			Component("pipeline.cut").Category(errs.CategoryMedia).Build()
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
