package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/providers"
)

// GenerateRequest is the input to the full cut/TTS/align/replace/concat
// state machine described in spec.md §4.8's generate_from_script.
type GenerateRequest struct {
	VideoPath      string
	Segments       []model.Segment
	OutputPath     string
	WorkDir        string // scratch directory for per-segment clips; created if absent
	ScriptLanguage string
	Voice          string
}

// GenerateResult is the outcome of a successful video generation run.
type GenerateResult struct {
	OutputPath string
}

// ProgressFunc reports a named stage and its 0-100 completion percent.
type ProgressFunc func(stage string, percent int)

// WarnFunc reports a non-fatal condition for a named stage — a fallback
// taken instead of failing the task outright — so callers can surface it
// on the same channel as progress rather than only in the process log.
type WarnFunc func(stage, message string)

// GenerateVideo runs the full per-project video assembly state machine:
// cut every segment's window from the source, synthesize narration audio
// for non-original segments in parallel, align each narrated segment's
// window to its audio length, replace audio, then concatenate every
// segment's clip in order into the final output.
//
// Grounded on video_processor.py's call graph as orchestrated by
// generate_from_script (in video_generation_service.py, not itself part of
// the retrieval pack) — the per-stage operations it sequences are all in
// video_processor.py directly.
func (p *Pipeline) GenerateVideo(ctx context.Context, tts providers.TTSProvider, req GenerateRequest, hook *CancelHook, progress ProgressFunc, warn WarnFunc) (GenerateResult, error) {
	if len(req.Segments) == 0 {
		return GenerateResult{}, errs.Newf("pipeline: generate requires at least one segment").
			Component("pipeline.generate").Category(errs.CategoryInput).Build()
	}

	videoDurSeconds, err := p.prober.Duration(ctx, req.VideoPath)
	if err != nil {
		return GenerateResult{}, errs.New(err).Component("pipeline.generate").Category(errs.CategoryMedia).
			Context("stage", "probe-source").Build()
	}
	videoDur := time.Duration(videoDurSeconds * float64(time.Second))

	workDir := req.WorkDir
	if workDir == "" {
		workDir = filepath.Join(filepath.Dir(req.OutputPath), ".narrationforge-work")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return GenerateResult{}, errs.New(err).Component("pipeline.generate").Category(errs.CategoryInternal).
			Context("stage", "mkdir-workdir").Build()
	}
	defer os.RemoveAll(workDir)

	reportStage(progress, "cut", 0)
	rawClips := make(map[int]string, len(req.Segments))
	for _, seg := range req.Segments {
		rawPath := filepath.Join(workDir, fmt.Sprintf("raw_%d.mp4", seg.ID))
		if err := p.CutSegment(ctx, req.VideoPath, rawPath, seg.Start, seg.Duration(), hook); err != nil {
			return GenerateResult{}, errs.New(err).Component("pipeline.generate").Category(errs.CategoryMedia).
				Context("stage", "cut").Context("segment_id", seg.ID).Build()
		}
		rawClips[seg.ID] = rawPath
	}
	reportStage(progress, "cut", 100)

	reportStage(progress, "tts", 0)
	var jobs []TTSJob
	for _, seg := range req.Segments {
		if seg.IsOriginal() || seg.Narration == "" {
			continue
		}
		jobs = append(jobs, TTSJob{
			SegmentID: seg.ID,
			Request: providers.SpeechRequest{
				Text:     seg.Narration,
				Voice:    req.Voice,
				Language: req.ScriptLanguage,
			},
		})
	}
	ttsResults, err := RunTTSFanout(ctx, tts, jobs)
	if err != nil {
		return GenerateResult{}, errs.New(err).Component("pipeline.generate").Category(errs.CategoryProvider).
			Context("stage", "tts").Build()
	}
	ttsByID := make(map[int]TTSResult, len(ttsResults))
	for _, r := range ttsResults {
		ttsByID[r.SegmentID] = r
	}
	reportStage(progress, "tts", 100)

	reportStage(progress, "align", 0)
	finalClips := make([]string, len(req.Segments))
	for i, seg := range req.Segments {
		rawPath := rawClips[seg.ID]
		if seg.IsOriginal() || seg.Narration == "" {
			finalClips[i] = rawPath
			continue
		}

		ttsRes, ok := ttsByID[seg.ID]
		if !ok {
			return GenerateResult{}, errs.Newf("pipeline: no synthesized audio for segment %d", seg.ID).
				Component("pipeline.generate").Category(errs.CategoryInternal).Build()
		}

		aligned := AlignWindow(seg.Start, seg.Duration(), ttsRes.Duration, videoDur)
		clipPath := rawPath
		if aligned.Changed {
			alignedPath := filepath.Join(workDir, fmt.Sprintf("aligned_%d.mp4", seg.ID))
			if err := p.CutSegment(ctx, req.VideoPath, alignedPath, aligned.Start, aligned.Duration, hook); err != nil {
				return GenerateResult{}, errs.New(err).Component("pipeline.generate").Category(errs.CategoryMedia).
					Context("stage", "re-cut-aligned").Context("segment_id", seg.ID).Build()
			}
			clipPath = alignedPath
		}

		finalPath := filepath.Join(workDir, fmt.Sprintf("final_%d.mp4", seg.ID))
		if err := p.ReplaceAudio(ctx, clipPath, ttsRes.AudioPath, finalPath, hook); err != nil {
			msg := fmt.Sprintf("segment %d: audio replacement failed, falling back to original clip with original audio: %v", seg.ID, err)
			logger.Warn("audio replacement failed, falling back to original clip with original audio",
				"segment_id", seg.ID, "error", err)
			if warn != nil {
				warn("align", msg)
			}
			finalClips[i] = rawPath
			continue
		}
		finalClips[i] = finalPath
	}
	reportStage(progress, "align", 100)

	reportStage(progress, "concat", 0)
	if err := p.ConcatVideos(ctx, finalClips, req.OutputPath, func(pct int) { reportStage(progress, "concat", pct) }, hook); err != nil {
		return GenerateResult{}, errs.New(err).Component("pipeline.generate").Category(errs.CategoryMedia).
			Context("stage", "concat").Build()
	}
	reportStage(progress, "concat", 100)

	return GenerateResult{OutputPath: req.OutputPath}, nil
}

func reportStage(progress ProgressFunc, stage string, percent int) {
	if progress != nil {
		progress(stage, percent)
	}
}
