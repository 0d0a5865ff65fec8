package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/errs"
)

// muxTolerance is the duration mismatch below which audio replacement uses
// a plain stream-copy mux instead of a re-encoding filter graph, matching
// video_processor.py's `abs(adur - vdur) <= 0.05` check.
const muxTolerance = 50 * time.Millisecond

// ReplaceAudio replaces videoPath's audio track with narrationPath,
// producing output. It picks the graph shape from the two clips' duration
// difference:
//   - nearly equal: a cheap stream-copy mux.
//   - narration longer: pad the video's last frame to match (tpad).
//   - narration shorter: trim the video to the narration's length.
//
// After a successful encode it verifies the output actually has a video
// stream (ffmpeg can silently drop it on some filter-graph/encoder
// combinations); if not, it retries once with a guaranteed-available
// libx264 encoder. Grounded on
// video_processor.py's replace_audio_with_narration.
func (p *Pipeline) ReplaceAudio(ctx context.Context, videoPath, narrationPath, output string, hook *CancelHook) error {
	vdur, err := p.prober.Duration(ctx, videoPath)
	if err != nil || vdur <= 0 {
		return errs.Newf("pipeline: could not determine video duration for %s", videoPath).
			Component("pipeline.replace").Category(errs.CategoryMedia).Build()
	}
	info, err := p.prober.ProbeStreams(ctx, narrationPath)
	if err != nil || info.Audio == nil {
		return errs.Newf("pipeline: could not determine narration audio duration for %s", narrationPath).
			Component("pipeline.replace").Category(errs.CategoryMedia).Build()
	}
	adur, err := p.prober.Duration(ctx, narrationPath)
	if err != nil || adur <= 0 {
		return errs.Newf("pipeline: narration audio duration is zero for %s", narrationPath).
			Component("pipeline.replace").Category(errs.CategoryMedia).Build()
	}

	videoDur := time.Duration(vdur * float64(time.Second))
	audioDur := time.Duration(adur * float64(time.Second))

	enc := p.encoders.Priority(ctx)[0]

	if absDuration(audioDur-videoDur) <= muxTolerance {
		args := []string{
			"-hide_banner", "-loglevel", "error",
			"-i", videoPath, "-i", narrationPath,
			"-map", "0:v:0", "-map", "1:a:0",
			"-c:v", "copy",
			"-c:a", "aac", "-b:a", "192k", "-ar", "48000",
			"-shortest",
			"-movflags", "+faststart",
			"-y", output,
		}
		if err := p.runReplaceAndVerify(ctx, args, output, hook); err == nil {
			return nil
		}
		// Stream-copy mux occasionally yields a file with no video stream;
		// retry the same mapping with a forced re-encode.
		fallback := replaceFallbackArgs(videoPath, narrationPath, output, nil, nil)
		return p.runReplaceAndVerify(ctx, fallback, output, hook)
	}

	var filterComplex string
	if audioDur >= videoDur {
		pad := audioDur - videoDur
		filterComplex = fmt.Sprintf("[0:v]tpad=stop_mode=clone:stop_duration=%.3f,setpts=PTS-STARTPTS[v];[1:a]asetpts=PTS-STARTPTS[a]", pad.Seconds())
	} else {
		filterComplex = fmt.Sprintf("[0:v]trim=start=0:end=%.3f,setpts=PTS-STARTPTS[v];[1:a]asetpts=PTS-STARTPTS[a]", audioDur.Seconds())
	}

	vcodecArgs := append([]string{}, enc.Args...)
	vcodecArgs = append(vcodecArgs, "-pix_fmt", "yuv420p", "-movflags", "+faststart")

	args := []string{"-hide_banner", "-loglevel", "error", "-i", videoPath, "-i", narrationPath,
		"-filter_complex", filterComplex, "-map", "[v]", "-map", "[a]"}
	args = append(args, vcodecArgs...)
	args = append(args, "-c:a", "aac", "-b:a", "192k", "-ar", "48000", "-y", output)

	if err := p.runReplaceAndVerify(ctx, args, output, hook); err == nil {
		return nil
	}

	fallback := replaceFallbackArgs(videoPath, narrationPath, output, []string{"-filter_complex", filterComplex, "-map", "[v]", "-map", "[a]"}, nil)
	return p.runReplaceAndVerify(ctx, fallback, output, hook)
}

func replaceFallbackArgs(videoPath, narrationPath, output string, graphArgs, mapArgs []string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", videoPath, "-i", narrationPath}
	if graphArgs != nil {
		args = append(args, graphArgs...)
	} else {
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	}
	args = append(args,
		"-c:v", "libx264", "-preset", "superfast", "-crf", "18", "-pix_fmt", "yuv420p", "-movflags", "+faststart",
		"-c:a", "aac", "-b:a", "192k", "-ar", "48000",
		"-shortest",
		"-y", output,
	)
	return args
}

func (p *Pipeline) runReplaceAndVerify(ctx context.Context, args []string, output string, hook *CancelHook) error {
	res := runFFmpeg(ctx, "audio-replace", p.ffmpegPath, args, 0, hook, nil)
	if res.exitErr != nil {
		return errs.New(res.exitErr).Component("pipeline.replace").Category(errs.CategoryMedia).Build()
	}
	info, err := p.prober.ProbeStreams(ctx, output)
	if err != nil || info.Video == nil {
		return errs.Newf("pipeline: audio replacement output has no video stream: %s", output).
			Component("pipeline.replace").Category(errs.CategoryMedia).Build()
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
