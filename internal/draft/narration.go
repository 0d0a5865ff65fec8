package draft

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/mediaprobe"
	"github.com/kestrelmedia/narrationforge/internal/pipeline"
	"github.com/kestrelmedia/narrationforge/internal/providers"
)

// synthesizeNarrations synthesizes and loudness-normalizes narration audio
// for every non-OST segment with narration text, sequentially (draft
// building is not latency-sensitive the way interactive video generation
// is, and jianying_draft_manager.py's TTS loop is itself sequential rather
// than fanned out). Each clip is normalized to pipeline.DefaultLoudnessTarget
// via the same two-pass loudnorm the video pipeline uses, grounded on
// audio_normalizer.py's normalize_audio_loudness call in the original loop.
func synthesizeNarrations(ctx context.Context, tts providers.TTSProvider, pl *pipeline.Pipeline, req BuildRequest, assetsAudioDir string, onProgress func(idx, total int)) (map[int]NarrationAudio, error) {
	var narrated []int
	for _, seg := range req.Segments {
		if !seg.IsOriginal() && seg.Narration != "" {
			narrated = append(narrated, seg.ID)
		}
	}

	results := make(map[int]NarrationAudio, len(narrated))
	if len(narrated) == 0 {
		return results, nil
	}

	segByID := make(map[int]string, len(req.Segments))
	for _, seg := range req.Segments {
		segByID[seg.ID] = seg.Narration
	}

	for i, segID := range narrated {
		res, err := tts.Synthesize(ctx, providers.SpeechRequest{
			Text:     segByID[segID],
			Voice:    req.Voice,
			Language: req.ScriptLanguage,
		})
		if err != nil {
			return nil, errs.New(err).Component("draft.narration").Category(errs.CategoryProvider).
				Context("segment_id", segID).Build()
		}
		rawPath := filepath.Join(assetsAudioDir, fmt.Sprintf("seg_%04d.mp3", segID))
		if err := copyFile(res.AudioPath, rawPath); err != nil {
			return nil, errs.New(err).Component("draft.narration").Category(errs.CategoryInternal).
				Context("segment_id", segID).Build()
		}

		normPath := filepath.Join(assetsAudioDir, fmt.Sprintf("seg_%04d_norm.mp3", segID))
		narrPath := rawPath
		if err := pl.NormalizeLoudness(ctx, rawPath, normPath, pipeline.DefaultLoudnessTarget, 44100, 2); err == nil {
			narrPath = normPath
		}

		duration := time.Duration(res.Duration * float64(time.Second))
		if duration <= 0 {
			return nil, errs.Newf("draft: synthesized audio for segment %d has no usable duration", segID).
				Component("draft.narration").Category(errs.CategoryProvider).Build()
		}
		results[segID] = NarrationAudio{Path: narrPath, Duration: duration}

		if onProgress != nil {
			onProgress(i+1, len(narrated))
		}
	}
	return results, nil
}

func videoMetaFrom(ctx context.Context, prober *mediaprobe.Prober, path string) (videoMeta, error) {
	info, err := prober.ProbeStreams(ctx, path)
	if err != nil || info.Video == nil {
		return videoMeta{}, fmt.Errorf("draft: could not probe video metadata for %s: %w", path, err)
	}
	fps := info.Video.FrameRate
	if fps <= 0 {
		fps = 30
	}
	return videoMeta{
		Width:    info.Video.Width,
		Height:   info.Video.Height,
		FPS:      fps,
		Duration: time.Duration(info.Duration * float64(time.Second)),
	}, nil
}

func copyUnique(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(src)
	dst := filepath.Join(dstDir, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		base := name[:len(name)-len(ext)]
		dst = filepath.Join(dstDir, fmt.Sprintf("%s_%s%s", base, uniqueSuffix(), ext))
	}
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func uniqueSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
