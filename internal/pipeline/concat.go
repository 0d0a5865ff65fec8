package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/mediaprobe"
)

// clipInfo is what the concat tier decision needs about one input clip.
type clipInfo struct {
	Duration   time.Duration
	FormatName string
	Video      *mediaprobe.VideoStream
	Audio      *mediaprobe.AudioStream
}

// frameRateTolerance is the frame-rate equality slack spec'd for Tier 1
// eligibility (video_processor.py compares with `< 0.001`).
const frameRateTolerance = 0.001

// canConcatDemuxer reports whether every clip shares codec, pix_fmt,
// width, height, frame rate, and audio shape closely enough to remux with
// the concat demuxer (`-c copy`), matching
// video_processor.py's copy_possible computation.
func canConcatDemuxer(clips []clipInfo) bool {
	if len(clips) == 0 {
		return false
	}
	base := clips[0]
	if base.Video == nil {
		return false
	}
	for _, c := range clips[1:] {
		if c.Video == nil {
			return false
		}
		if c.Video.Codec != base.Video.Codec ||
			c.Video.PixFmt != base.Video.PixFmt ||
			c.Video.Width != base.Video.Width ||
			c.Video.Height != base.Video.Height ||
			math.Abs(c.Video.FrameRate-base.Video.FrameRate) >= frameRateTolerance {
			return false
		}
		if (base.Audio == nil) != (c.Audio == nil) {
			return false
		}
		if base.Audio != nil && c.Audio != nil {
			if c.Audio.Codec != base.Audio.Codec ||
				c.Audio.SampleRate != base.Audio.SampleRate ||
				c.Audio.Channels != base.Audio.Channels {
				return false
			}
		}
	}
	return true
}

// canConcatTS reports whether clips additionally qualify for the TS-remux
// tier: demuxer-eligible, h264/hevc video, an mp4/mov-family container, and
// aac-or-absent audio throughout. Matches video_processor.py's
// can_concat_ts gate.
func canConcatTS(clips []clipInfo, copyPossible bool) bool {
	if !copyPossible || len(clips) == 0 {
		return false
	}
	v0 := clips[0].Video
	if v0 == nil || (v0.Codec != "h264" && v0.Codec != "hevc") {
		return false
	}
	var a0Codec string
	if clips[0].Audio != nil {
		a0Codec = clips[0].Audio.Codec
	}
	if a0Codec != "" && a0Codec != "aac" {
		return false
	}
	mp4Like := false
	for _, c := range clips {
		lower := strings.ToLower(c.FormatName)
		if strings.Contains(lower, "mp4") || strings.Contains(lower, "mov") {
			mp4Like = true
		}
		var aCodec string
		if c.Audio != nil {
			aCodec = c.Audio.Codec
		}
		if aCodec != a0Codec {
			return false
		}
	}
	return mp4Like
}

// ConcatVideos concatenates inputs in order into output. A single input is
// remuxed on its own. Otherwise it tries TS-remux concatenation (Tier 2)
// when the inputs qualify for it, then the concat demuxer (Tier 1) when
// they qualify for that, and a filter_complex re-encode (Tier 3) as the
// universal fallback. onProgress, if non-nil, receives 0-100 percent updates; it
// never reports 100 until ffmpeg itself reports completion.
//
// Grounded on video_processor.py's concat_videos, restructured as
// independent tier functions instead of one 500-line method.
func (p *Pipeline) ConcatVideos(ctx context.Context, inputs []string, output string, onProgress func(percent int), hook *CancelHook) error {
	if len(inputs) == 0 {
		return errs.Newf("pipeline: concat requires at least one input").
			Component("pipeline.concat").Category(errs.CategoryInput).Build()
	}
	if len(inputs) == 1 {
		return p.concatSingle(ctx, inputs[0], output, hook)
	}

	clips := make([]clipInfo, len(inputs))
	var totalDuration time.Duration
	for i, in := range inputs {
		info, err := p.prober.ProbeStreams(ctx, in)
		if err != nil {
			return errs.New(err).Component("pipeline.concat").Category(errs.CategoryMedia).
				Context("input", in).Build()
		}
		clips[i] = clipInfo{
			Duration:   time.Duration(info.Duration * float64(time.Second)),
			FormatName: info.FormatName,
			Video:      info.Video,
			Audio:      info.Audio,
		}
		totalDuration += clips[i].Duration
	}

	copyPossible := canConcatDemuxer(clips)
	tsPossible := canConcatTS(clips, copyPossible)

	if tsPossible {
		if err := p.concatViaTS(ctx, inputs, clips, output, totalDuration, onProgress, hook); err == nil {
			return nil
		}
		logger.Warn("TS-remux concatenation failed, falling back to demuxer/filter_complex")
	}
	if copyPossible {
		if err := p.concatViaDemuxer(ctx, inputs, output, totalDuration, onProgress, hook); err == nil {
			return nil
		}
		logger.Warn("concat demuxer failed, falling back to filter_complex")
	}
	return p.concatViaFilterComplex(ctx, inputs, clips, output, totalDuration, onProgress, hook)
}

func (p *Pipeline) concatSingle(ctx context.Context, input, output string, hook *CancelHook) error {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", input, "-c", "copy", "-movflags", "+faststart", "-y", output}
	res := runFFmpeg(ctx, "concat-single", p.ffmpegPath, args, 0, hook, nil)
	if res.exitErr != nil {
		return errs.New(res.exitErr).Component("pipeline.concat").Category(errs.CategoryMedia).
			Context("stage", "single-remux").Build()
	}
	return nil
}

func (p *Pipeline) concatViaDemuxer(ctx context.Context, inputs []string, output string, totalDuration time.Duration, onProgress func(int), hook *CancelHook) error {
	listPath := output + ".concat.txt"
	var b strings.Builder
	for _, in := range inputs {
		fmt.Fprintf(&b, "file '%s'\n", filepath.ToSlash(in))
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return errs.New(err).Component("pipeline.concat").Category(errs.CategoryInternal).
			Context("stage", "write-concat-list").Build()
	}
	defer os.Remove(listPath)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", "-movflags", "+faststart", "-progress", "pipe:1",
		"-y", output,
	}
	res := runFFmpeg(ctx, "concat-demuxer", p.ffmpegPath, args, totalDuration, hook, onProgress)
	if res.exitErr != nil {
		return errs.New(res.exitErr).Component("pipeline.concat").Category(errs.CategoryMedia).
			Context("stage", "demuxer").Build()
	}
	return nil
}

func (p *Pipeline) concatViaTS(ctx context.Context, inputs []string, clips []clipInfo, output string, totalDuration time.Duration, onProgress func(int), hook *CancelHook) error {
	bsf := "h264_mp4toannexb"
	if clips[0].Video.Codec == "hevc" {
		bsf = "hevc_mp4toannexb"
	}
	tmpDir := filepath.Dir(output)
	tsFiles := make([]string, len(inputs))
	for i, in := range inputs {
		tsPath := filepath.Join(tmpDir, fmt.Sprintf(".concat_%d.ts", i))
		tsFiles[i] = tsPath
		args := []string{
			"-hide_banner", "-loglevel", "error",
			"-i", in, "-c", "copy", "-bsf:v", bsf, "-f", "mpegts", "-y", tsPath,
		}
		res := runFFmpeg(ctx, "concat-ts-remux", p.ffmpegPath, args, 0, hook, nil)
		if res.exitErr != nil {
			cleanupFiles(tsFiles)
			return errs.New(res.exitErr).Component("pipeline.concat").Category(errs.CategoryMedia).
				Context("stage", "ts-remux").Context("input", in).Build()
		}
	}
	defer cleanupFiles(tsFiles)

	concatURI := "concat:" + strings.Join(tsFiles, "|")
	args := []string{"-hide_banner", "-loglevel", "error", "-i", concatURI, "-c", "copy"}
	if clips[0].Audio != nil && clips[0].Audio.Codec == "aac" {
		args = append(args, "-bsf:a", "aac_adtstoasc")
	}
	args = append(args, "-movflags", "+faststart", "-progress", "pipe:1", "-y", output)

	res := runFFmpeg(ctx, "concat-ts-join", p.ffmpegPath, args, totalDuration, hook, onProgress)
	if res.exitErr != nil {
		return errs.New(res.exitErr).Component("pipeline.concat").Category(errs.CategoryMedia).
			Context("stage", "ts-join").Build()
	}
	return nil
}

func (p *Pipeline) concatViaFilterComplex(ctx context.Context, inputs []string, clips []clipInfo, output string, totalDuration time.Duration, onProgress func(int), hook *CancelHook) error {
	baseFrameRate := 0.0
	if clips[0].Video != nil {
		baseFrameRate = clips[0].Video.FrameRate
	}

	var filterParts []string
	for i, c := range clips {
		if baseFrameRate > 0 {
			filterParts = append(filterParts, fmt.Sprintf(
				"[%d:v:0]scale=trunc(iw/2)*2:trunc(ih/2)*2,fps=%s,format=yuv420p,setpts=PTS-STARTPTS[v%d]", i, strconv.FormatFloat(baseFrameRate, 'f', -1, 64), i))
		} else {
			filterParts = append(filterParts, fmt.Sprintf(
				"[%d:v:0]scale=trunc(iw/2)*2:trunc(ih/2)*2,format=yuv420p,setpts=PTS-STARTPTS[v%d]", i, i))
		}
		if c.Audio != nil {
			filterParts = append(filterParts, fmt.Sprintf("[%d:a:0]aresample=48000,asetpts=PTS-STARTPTS[a%d]", i, i))
		} else {
			filterParts = append(filterParts, fmt.Sprintf(
				"anullsrc=r=48000:cl=stereo,atrim=0:%.3f,asetpts=PTS-STARTPTS[a%d]", c.Duration.Seconds(), i))
		}
	}
	var mapPairs strings.Builder
	for i := range clips {
		fmt.Fprintf(&mapPairs, "[v%d][a%d]", i, i)
	}
	filterComplex := strings.Join(filterParts, ";") + fmt.Sprintf(";%sconcat=n=%d:v=1:a=1[v][a]", mapPairs.String(), len(clips))

	baseArgs := []string{"-hide_banner", "-loglevel", "error"}
	for _, in := range inputs {
		baseArgs = append(baseArgs, "-i", in)
	}

	var lastErr error
	for _, enc := range p.encoders.Priority(ctx) {
		args := append([]string{}, baseArgs...)
		args = append(args, "-filter_complex", filterComplex, "-map", "[v]", "-map", "[a]")
		args = append(args, enc.Args...)
		args = append(args,
			"-pix_fmt", "yuv420p", "-c:a", "aac", "-b:a", "128k",
			"-movflags", "+faststart", "-max_muxing_queue_size", "1024",
			"-progress", "pipe:1", "-y", output,
		)
		res := runFFmpeg(ctx, "concat-filter-complex", p.ffmpegPath, args, totalDuration, hook, onProgress)
		if res.exitErr == nil {
			return nil
		}
		lastErr = res.exitErr
		os.Remove(output)
	}
	return errs.New(lastErr).Component("pipeline.concat").Category(errs.CategoryMedia).
		Context("stage", "filter-complex-all-encoders-failed").Build()
}

func cleanupFiles(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
