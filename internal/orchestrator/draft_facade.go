package orchestrator

import (
	"context"

	"github.com/kestrelmedia/narrationforge/internal/draft"
	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/model"
)

// GenerateDraftRequest is the input to GenerateDraft.
type GenerateDraftRequest struct {
	ProjectID string
	OutputDir string // parent directory for the generated draft folder
	Voice     string
}

// GenerateDraft builds an editor-project draft folder (component I) from
// the project's saved script, mirroring jianying_draft_service.py's
// top-level flow: validate a script exists, run the draft builder, record
// the resulting folder path as the task's output.
func (o *Orchestrator) GenerateDraft(ctx context.Context, req GenerateDraftRequest) (string, error) {
	project, err := o.loadProject(ctx, req.ProjectID)
	if err != nil {
		return "", err
	}
	if project.VideoPath == "" {
		return "", errs.Newf("orchestrator: project %s has no source video", req.ProjectID).
			Component("orchestrator.generate_draft").Category(errs.CategoryInput).Build()
	}
	if project.Script == nil || len(project.Script.Segments) == 0 {
		return "", errs.Newf("orchestrator: project %s has no script to build a draft from", req.ProjectID).
			Component("orchestrator.generate_draft").Category(errs.CategoryInput).Build()
	}
	if o.TTS == nil {
		return "", errs.Newf("orchestrator: no TTS provider configured").
			Component("orchestrator.generate_draft").Category(errs.CategoryDependency).Build()
	}

	taskID, err := o.Scheduler.Enqueue(ctx, model.ScopeGenerateDraft, req.ProjectID,
		o.concurrencyFor(model.ScopeGenerateDraft), true,
		func(taskCtx context.Context, projectID, taskID string) (string, error) {
			return o.runGenerateDraft(taskCtx, project, req, projectID, taskID)
		})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

func (o *Orchestrator) runGenerateDraft(ctx context.Context, project model.Project, req GenerateDraftRequest, projectID, taskID string) (string, error) {
	o.emitPhase(model.ScopeGenerateDraft, projectID, taskID, "start", "starting draft build", 1)

	outDir := req.OutputDir
	if outDir == "" {
		outDir = "drafts"
	}

	progress := func(phase string, percent int) {
		o.emitPhase(model.ScopeGenerateDraft, projectID, taskID, phase, "building draft: "+phase, percent)
	}

	result, err := draft.Build(ctx, o.TTS, o.Prober, o.FFmpegPath, draft.BuildRequest{
		VideoPath:      project.VideoPath,
		Segments:       project.Script.Segments,
		OutputDir:      outDir,
		ScriptLanguage: project.ScriptLanguage,
		Voice:          req.Voice,
	}, progress)
	if err != nil {
		return "", errs.New(err).Component("orchestrator.generate_draft").Category(errs.CategoryMedia).
			Context("project_id", projectID).Build()
	}

	if err := o.saveProject(ctx, project); err != nil {
		return "", errs.New(err).Component("orchestrator.generate_draft").Category(errs.CategoryInternal).Build()
	}

	return result.DraftDir, nil
}
