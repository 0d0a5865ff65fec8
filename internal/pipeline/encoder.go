// Package pipeline implements the video generation state machine: per-segment
// cut, TTS fan-out, duration alignment, audio replacement, and final
// concatenation. Grounded on
// original_source/backend/modules/video_processor.py and
// audio_normalizer.py, restructured from one monolithic VideoProcessor class
// into small, independently testable functions the way the teacher splits
// audio pipeline stages across internal/audiocore's subpackages.
package pipeline

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/kestrelmedia/narrationforge/internal/logging"
)

var logger = logging.ForService("pipeline")

// EncoderOption is one candidate video encoder plus the ffmpeg arguments
// that select it.
type EncoderOption struct {
	Name string
	Args []string
}

// encoderPriority is the fixed ordering spec'd for this pipeline: libx264
// first as the safe baseline that works in any environment, then GPU
// encoders when detected. This differs deliberately from
// video_processor.py's _pick_fast_encoder (which tries GPU encoders first)
// — that original function and _get_encoder_priority_list disagreed with
// each other on ordering; this pipeline collapses both call sites onto one
// priority list, libx264-first, so cut/replace/concat always agree on which
// encoder is "best".
func encoderPriority(available map[string]bool, cudaAvailable bool) []EncoderOption {
	opts := []EncoderOption{
		{Name: "libx264", Args: []string{"-c:v", "libx264", "-preset", "superfast", "-crf", "18"}},
	}
	if cudaAvailable && available["h264_nvenc"] {
		opts = append(opts, EncoderOption{Name: "h264_nvenc", Args: []string{"-c:v", "h264_nvenc", "-preset", "p3", "-rc:v", "vbr_hq", "-cq:v", "19"}})
	}
	if available["h264_qsv"] {
		opts = append(opts, EncoderOption{Name: "h264_qsv", Args: []string{"-c:v", "h264_qsv"}})
	}
	if available["h264_amf"] {
		opts = append(opts, EncoderOption{Name: "h264_amf", Args: []string{"-c:v", "h264_amf"}})
	}
	return opts
}

// EncoderDetector probes the local ffmpeg build once per process for
// available hardware encoders, caching the result like
// video_processor.py's _detect_encoders/_detect_cuda (which stash their
// findings on instance attributes the first time they're asked).
type EncoderDetector struct {
	ffmpegPath string

	once      sync.Once
	available map[string]bool
	cuda      bool
}

// NewEncoderDetector returns a detector that invokes the given ffmpeg
// binary (or "ffmpeg" from PATH when empty).
func NewEncoderDetector(ffmpegPath string) *EncoderDetector {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &EncoderDetector{ffmpegPath: ffmpegPath}
}

// Priority returns the ordered encoder candidates for this machine,
// libx264 first, detecting hardware encoders on first call and caching the
// result for the lifetime of the detector.
func (d *EncoderDetector) Priority(ctx context.Context) []EncoderOption {
	d.once.Do(func() { d.detect(ctx) })
	return encoderPriority(d.available, d.cuda)
}

func (d *EncoderDetector) detect(ctx context.Context) {
	d.available = detectEncoderNames(ctx, d.ffmpegPath)
	d.cuda = detectCUDA(ctx, d.ffmpegPath)
	if d.cuda {
		logger.Info("CUDA/NVENC detected, GPU encoding enabled")
	} else {
		logger.Info("no CUDA/NVENC detected, using CPU encoding")
	}
}

func detectEncoderNames(ctx context.Context, ffmpegPath string) map[string]bool {
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		logger.Warn("failed to list ffmpeg encoders, assuming CPU-only", "error", err)
		return map[string]bool{}
	}
	text := string(out)
	found := make(map[string]bool)
	for _, name := range []string{"h264_nvenc", "h264_qsv", "h264_amf"} {
		if strings.Contains(text, name) {
			found[name] = true
		}
	}
	return found
}

func detectCUDA(ctx context.Context, ffmpegPath string) bool {
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-hwaccels").CombinedOutput()
	if err != nil {
		return false
	}
	text := strings.ToLower(string(out))
	return strings.Contains(text, "cuda") || strings.Contains(text, "nvdec") || strings.Contains(text, "cuvid")
}
