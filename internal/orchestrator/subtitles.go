package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/script"
)

// ExtractSubtitlesRequest is the input to ExtractSubtitles.
type ExtractSubtitlesRequest struct {
	ProjectID    string
	SubtitlesDir string // destination directory for the compressed .srt; created if absent
}

// ExtractSubtitles runs ASR over a project's source video and persists the
// result as compressed-dialect subtitle text, mirroring
// extract_subtitle_service.py's ExtractSubtitleService.extract_subtitle:
// validate the video exists, call the ASR provider, compress the returned
// SRT, write it to disk, and update the project record.
func (o *Orchestrator) ExtractSubtitles(ctx context.Context, req ExtractSubtitlesRequest) (string, error) {
	project, err := o.loadProject(ctx, req.ProjectID)
	if err != nil {
		return "", err
	}
	if project.VideoPath == "" {
		return "", errs.Newf("orchestrator: project %s has no source video", req.ProjectID).
			Component("orchestrator.extract_subtitles").Category(errs.CategoryInput).Build()
	}
	if o.ASR == nil {
		return "", errs.Newf("orchestrator: no ASR provider configured").
			Component("orchestrator.extract_subtitles").Category(errs.CategoryDependency).Build()
	}

	taskID, err := o.Scheduler.Enqueue(ctx, model.ScopeExtractSubtitles, req.ProjectID,
		o.concurrencyFor(model.ScopeExtractSubtitles), true,
		func(taskCtx context.Context, projectID, taskID string) (string, error) {
			return o.runExtractSubtitles(taskCtx, project, req, projectID, taskID)
		})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

func (o *Orchestrator) runExtractSubtitles(ctx context.Context, project model.Project, req ExtractSubtitlesRequest, projectID, taskID string) (string, error) {
	o.emitPhase(model.ScopeExtractSubtitles, projectID, taskID, "start", "extracting subtitles", 1)

	o.emitPhase(model.ScopeExtractSubtitles, projectID, taskID, "asr_start", "running ASR", 30)
	result, err := o.ASR.Transcribe(ctx, project.VideoPath)
	if err != nil {
		return "", errs.New(err).Component("orchestrator.extract_subtitles").Category(errs.CategoryProvider).
			Context("project_id", projectID).Build()
	}

	compressed := script.CompressSubtitles(result.SRT)
	if compressed == "" {
		return "", errs.Newf("orchestrator: ASR produced no usable subtitle cues").
			Component("orchestrator.extract_subtitles").Category(errs.CategoryProvider).Build()
	}

	o.emitPhase(model.ScopeExtractSubtitles, projectID, taskID, "subtitle_saved", "writing subtitle file", 85)
	dir := req.SubtitlesDir
	if dir == "" {
		dir = "subtitles"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.New(err).Component("orchestrator.extract_subtitles").Category(errs.CategoryInternal).Build()
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	outPath := filepath.Join(dir, projectID+"_subtitle_"+suffix+".srt")
	if err := os.WriteFile(outPath, []byte(compressed), 0o644); err != nil {
		return "", errs.New(err).Component("orchestrator.extract_subtitles").Category(errs.CategoryInternal).Build()
	}

	project.SubtitlePath = outPath
	if result.Language != "" {
		project.ScriptLanguage = result.Language
	}
	if err := o.saveProject(ctx, project); err != nil {
		return "", errs.New(err).Component("orchestrator.extract_subtitles").Category(errs.CategoryInternal).Build()
	}

	return outPath, nil
}
