// Package mediaprobe wraps ffprobe to answer the questions NarrationForge's
// video pipeline needs about a media file: duration, codec/format
// compatibility for cheap concatenation, and keyframe alignment.
//
// Grounded on original_source/backend/modules/video_processor.py's
// _probe_stream_info, _ffprobe_video_duration, _ffprobe_format_name,
// _ffprobe_has_audio, and _first_frame_is_keyframe helpers.
package mediaprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/logging"
)

var logger = logging.ForService("mediaprobe")

// Prober runs ffprobe against media files.
type Prober struct {
	ffprobePath string
}

// New returns a Prober that invokes the given ffprobe binary (or "ffprobe"
// from PATH when empty).
func New(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

// VideoStream describes the first video stream of a probed file.
type VideoStream struct {
	Codec     string
	PixFmt    string
	Width     int
	Height    int
	FrameRate float64
}

// AudioStream describes the first audio stream of a probed file.
type AudioStream struct {
	Codec      string
	SampleRate int
	Channels   int
}

// StreamInfo is the combined result of probing a file's streams.
type StreamInfo struct {
	Video      *VideoStream
	Audio      *AudioStream
	FormatName string
	Duration   float64 // seconds, preferring the video stream's duration over the container's
}

type ffprobeStream struct {
	CodecType   string `json:"codec_type"`
	CodecName   string `json:"codec_name"`
	PixFmt      string `json:"pix_fmt"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	RFrameRate  string `json:"r_frame_rate"`
	SampleRate  string `json:"sample_rate"`
	Channels    int    `json:"channels"`
	DurationStr string `json:"duration"`
}

type ffprobeFormat struct {
	FormatName  string `json:"format_name"`
	DurationStr string `json:"duration"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

// ProbeStreams runs ffprobe -show_streams -show_format on path and extracts
// the first video and audio stream. Grounded on
// video_processor.py's _probe_stream_info.
func (p *Prober) ProbeStreams(ctx context.Context, path string) (*StreamInfo, error) {
	out, err := p.run(ctx, "-show_streams", "-show_format", "-of", "json", path)
	if err != nil {
		return nil, err
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, errs.New(err).Component("mediaprobe").Category(errs.CategoryMedia).
			Context("operation", "parse-ffprobe-json").Context("path", path).Build()
	}

	info := &StreamInfo{FormatName: parsed.Format.FormatName}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if info.Video == nil {
				info.Video = &VideoStream{
					Codec:     s.CodecName,
					PixFmt:    s.PixFmt,
					Width:     s.Width,
					Height:    s.Height,
					FrameRate: parseFrameRate(s.RFrameRate),
				}
				if d, err := strconv.ParseFloat(s.DurationStr, 64); err == nil {
					info.Duration = d
				}
			}
		case "audio":
			if info.Audio == nil {
				sampleRate, _ := strconv.Atoi(s.SampleRate)
				info.Audio = &AudioStream{
					Codec:      s.CodecName,
					SampleRate: sampleRate,
					Channels:   s.Channels,
				}
			}
		}
	}

	if info.Duration == 0 {
		if d, err := strconv.ParseFloat(parsed.Format.DurationStr, 64); err == nil {
			info.Duration = d
		}
	}

	return info, nil
}

// parseFrameRate turns ffprobe's "30/1" or "30000/1001" style rational
// frame rate string into a float.
func parseFrameRate(raw string) float64 {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// HasAudio reports whether path has at least one audio stream. Grounded on
// video_processor.py's _ffprobe_has_audio.
func (p *Prober) HasAudio(ctx context.Context, path string) (bool, error) {
	info, err := p.ProbeStreams(ctx, path)
	if err != nil {
		return false, err
	}
	return info.Audio != nil, nil
}

// Duration returns path's duration in seconds, preferring the video
// stream's own duration field over the container-level duration, mirroring
// _ffprobe_video_duration's stated preference.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	info, err := p.ProbeStreams(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// FirstFrameIsKeyframe reports whether the first video frame of path is a
// keyframe, within a 1ms tolerance, matching
// video_processor.py's _first_frame_is_keyframe (skip_frame nokey +
// read_intervals %+0.2, checking abs(first_kf_time) < 0.001).
func (p *Prober) FirstFrameIsKeyframe(ctx context.Context, path string) (bool, error) {
	out, err := p.run(ctx, "-select_streams", "v:0", "-skip_frame", "nokey",
		"-show_entries", "frame=pkt_pts_time", "-read_intervals", "%+0.2", "-of", "json", path)
	if err != nil {
		return false, err
	}

	var parsed struct {
		Frames []struct {
			PktPtsTime string `json:"pkt_pts_time"`
		} `json:"frames"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return false, errs.New(err).Component("mediaprobe").Category(errs.CategoryMedia).
			Context("operation", "parse-keyframe-json").Build()
	}
	if len(parsed.Frames) == 0 {
		return false, nil
	}
	t, err := strconv.ParseFloat(parsed.Frames[0].PktPtsTime, 64)
	if err != nil {
		return false, nil
	}
	return math.Abs(t) < 0.001, nil
}

func (p *Prober) run(ctx context.Context, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-v", "error"}, args...)
	cmd := exec.CommandContext(ctx, p.ffprobePath, fullArgs...)
	out, err := cmd.Output()
	if err != nil {
		logger.Error("ffprobe invocation failed", "args", fmt.Sprintf("%v", fullArgs), "error", err)
		return nil, errs.New(err).Component("mediaprobe").Category(errs.CategoryDependency).
			Context("operation", "exec-ffprobe").Build()
	}
	return out, nil
}
