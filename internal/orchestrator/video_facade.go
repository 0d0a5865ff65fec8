package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/pipeline"
)

// GenerateVideoRequest is the input to GenerateVideo.
type GenerateVideoRequest struct {
	ProjectID string
	OutputDir string // directory the final video is written into; created if absent
	Voice     string
}

// GenerateVideo runs the cut/TTS/align/replace/concat pipeline (component
// H) over the project's saved script and records the result as the
// project's output video, mirroring video_generation_service.py's
// generate_from_script: validate a script exists, run the pipeline, then
// on success delete every prior output left in the project's output
// folder before recording the new one (spec.md §4.8).
func (o *Orchestrator) GenerateVideo(ctx context.Context, req GenerateVideoRequest) (string, error) {
	project, err := o.loadProject(ctx, req.ProjectID)
	if err != nil {
		return "", err
	}
	if project.VideoPath == "" {
		return "", errs.Newf("orchestrator: project %s has no source video", req.ProjectID).
			Component("orchestrator.generate_video").Category(errs.CategoryInput).Build()
	}
	if project.Script == nil || len(project.Script.Segments) == 0 {
		return "", errs.Newf("orchestrator: project %s has no script to generate video from", req.ProjectID).
			Component("orchestrator.generate_video").Category(errs.CategoryInput).Build()
	}
	if o.TTS == nil {
		return "", errs.Newf("orchestrator: no TTS provider configured").
			Component("orchestrator.generate_video").Category(errs.CategoryDependency).Build()
	}

	taskID, err := o.Scheduler.Enqueue(ctx, model.ScopeGenerateVideo, req.ProjectID,
		o.concurrencyFor(model.ScopeGenerateVideo), true,
		func(taskCtx context.Context, projectID, taskID string) (string, error) {
			return o.runGenerateVideo(taskCtx, project, req, projectID, taskID)
		})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

func (o *Orchestrator) runGenerateVideo(ctx context.Context, project model.Project, req GenerateVideoRequest, projectID, taskID string) (string, error) {
	o.emitPhase(model.ScopeGenerateVideo, projectID, taskID, "start", "starting video generation", 1)

	outDir := req.OutputDir
	if outDir == "" {
		outDir = filepath.Join("output", projectID)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", errs.New(err).Component("orchestrator.generate_video").Category(errs.CategoryInternal).Build()
	}
	priorOutputs, _ := filepath.Glob(filepath.Join(outDir, "*.mp4"))

	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	outPath := filepath.Join(outDir, fmt.Sprintf("video_%s.mp4", suffix))

	hook := o.hook(model.ScopeGenerateVideo, projectID, taskID)
	progress := func(stage string, percent int) {
		o.emitPhase(model.ScopeGenerateVideo, projectID, taskID, stage, "generating: "+stage, percent)
	}
	warn := func(stage, message string) {
		o.emitWarning(model.ScopeGenerateVideo, projectID, taskID, stage, message)
	}

	result, err := o.pipeline().GenerateVideo(ctx, o.TTS, pipeline.GenerateRequest{
		VideoPath:      project.VideoPath,
		Segments:       project.Script.Segments,
		OutputPath:     outPath,
		ScriptLanguage: project.ScriptLanguage,
		Voice:          req.Voice,
	}, hook, progress, warn)
	if err != nil {
		return "", errs.New(err).Component("orchestrator.generate_video").Category(errs.CategoryMedia).
			Context("project_id", projectID).Build()
	}

	o.emitPhase(model.ScopeGenerateVideo, projectID, taskID, "cleanup", "removing prior outputs", 96)
	for _, prior := range priorOutputs {
		if prior == result.OutputPath {
			continue
		}
		if err := os.Remove(prior); err != nil {
			logger.Warn("failed to remove prior video output", "path", prior, "error", err)
		}
	}

	project.OutputVideoPath = result.OutputPath
	project.Status = model.ProjectCompleted
	if err := o.saveProject(ctx, project); err != nil {
		return "", errs.New(err).Component("orchestrator.generate_video").Category(errs.CategoryInternal).Build()
	}

	return result.OutputPath, nil
}
