// Package draft builds editor-project folders in the "Jianying draft"
// folder layout: a draft_info.json describing canvas, materials, and
// tracks, plus a fixed set of companion JSON files editors expect
// alongside it.
//
// Grounded on original_source/backend/services/jianying_draft_manager.py
// (read in full) and backend/docs/demo_draft_manager.py (read in full) —
// both independently implement the same folder shape; this package merges
// them into one builder rather than keeping two near-duplicate call paths.
package draft

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/logging"
	"github.com/kestrelmedia/narrationforge/internal/mediaprobe"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/pipeline"
	"github.com/kestrelmedia/narrationforge/internal/providers"
)

var logger = logging.ForService("draft")

// BuildRequest is the input to Build.
type BuildRequest struct {
	VideoPath      string
	Segments       []model.Segment
	OutputDir      string // parent directory; Build creates a uniquely named subdirectory inside it
	ScriptLanguage string
	Voice          string
}

// BuildResult is the outcome of a successful draft build.
type BuildResult struct {
	DraftDir string
}

// ProgressFunc reports a named phase and its 0-100 completion percent,
// mirroring jianying_draft_manager.py's websocket progress broadcasts.
type ProgressFunc func(phase string, percent int)

// Build assembles a complete draft folder: it probes the source video,
// synthesizes and loudness-normalizes narration audio for every non-OST
// segment, aligns each segment's timeline window to its narration length
// (reusing pipeline.AlignWindow — the same duration-alignment rule the
// video pipeline uses), and writes draft_info.json plus every companion
// file into a fresh subdirectory of req.OutputDir.
//
// Unlike the video pipeline, no ffmpeg cut/concat ever runs here: the
// timeline's source_start_us/duration_us fields just point back into the
// single copied source video, and the editor performs the actual trim.
func Build(ctx context.Context, tts providers.TTSProvider, prober *mediaprobe.Prober, ffmpegPath string, req BuildRequest, progress ProgressFunc) (BuildResult, error) {
	if len(req.Segments) == 0 {
		return BuildResult{}, errs.Newf("draft: build requires at least one segment").
			Component("draft.build").Category(errs.CategoryInput).Build()
	}

	reportPhase(progress, "prepare", 8)
	info, err := prober.ProbeStreams(ctx, req.VideoPath)
	if err != nil || info.Video == nil {
		return BuildResult{}, errs.New(err).Component("draft.build").Category(errs.CategoryMedia).
			Context("stage", "probe-source").Build()
	}
	videoDur := time.Duration(info.Duration * float64(time.Second))

	draftDir, err := newDraftDir(req.OutputDir)
	if err != nil {
		return BuildResult{}, errs.New(err).Component("draft.build").Category(errs.CategoryInternal).Build()
	}

	reportPhase(progress, "copy_materials", 20)
	assetsVideoDir := filepath.Join(draftDir, "assets", "video")
	assetsAudioDir := filepath.Join(draftDir, "assets", "audio")
	if err := os.MkdirAll(assetsAudioDir, 0o755); err != nil {
		return BuildResult{}, errs.New(err).Component("draft.build").Category(errs.CategoryInternal).Build()
	}
	copiedVideo, err := copyUnique(req.VideoPath, assetsVideoDir)
	if err != nil {
		return BuildResult{}, errs.New(err).Component("draft.build").Category(errs.CategoryInternal).
			Context("stage", "copy-source-video").Build()
	}

	reportPhase(progress, "tts", 40)
	pl := pipeline.New(ffmpegPath, prober)
	narrations, err := synthesizeNarrations(ctx, tts, pl, req, assetsAudioDir, func(idx, total int) {
		base, span := 40, 25
		pct := base + int(float64(idx)/float64(total)*float64(span))
		if pct > 65 {
			pct = 65
		}
		reportPhase(progress, "tts_progress", pct)
	})
	if err != nil {
		return BuildResult{}, err
	}

	items := BuildTimelineItems(req.Segments, videoDur, narrations)
	if len(items) == 0 {
		return BuildResult{}, errs.Newf("draft: no usable segments to build a draft from").
			Component("draft.build").Category(errs.CategoryInput).Build()
	}

	reportPhase(progress, "write_json", 65)
	videoMeta, err := videoMetaFrom(ctx, prober, copiedVideo)
	if err != nil {
		return BuildResult{}, errs.New(err).Component("draft.build").Category(errs.CategoryMedia).Build()
	}
	if err := writeDraftInfo(draftDir, copiedVideo, videoMeta, items); err != nil {
		return BuildResult{}, errs.New(err).Component("draft.build").Category(errs.CategoryInternal).
			Context("stage", "write-draft-info").Build()
	}
	if err := writeCompanionFiles(draftDir, videoMeta); err != nil {
		return BuildResult{}, errs.New(err).Component("draft.build").Category(errs.CategoryInternal).
			Context("stage", "write-companion-files").Build()
	}

	reportPhase(progress, "output", 100)
	logger.Info("draft folder built", "dir", draftDir, "segments", len(items))
	return BuildResult{DraftDir: draftDir}, nil
}

func reportPhase(progress ProgressFunc, phase string, percent int) {
	if progress != nil {
		progress(phase, percent)
	}
}

func newDraftDir(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	dir := filepath.Join(outputDir, fmt.Sprintf("auto_%s", suffix))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
