package orchestrator

import (
	"context"
	"os"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/script"
)

// GenerateScriptRequest is the input to GenerateScript.
type GenerateScriptRequest struct {
	ProjectID    string
	DramaName    string
	PlotAnalysis string
	PlotFilter   script.PlotAnalysisFilter // optional; nil uses the full plot analysis for every chunk
}

// GenerateScript reads the project's subtitle file, runs the chunk/merge/
// refine assembly pipeline (component G), persists the resulting Script on
// the project record, and returns the enqueued task ID. Mirrors
// generate_script_service.py's top-level flow: load subtitles, resolve the
// prompt key and length plan from the project's settings, call
// script.Generate, save.
func (o *Orchestrator) GenerateScript(ctx context.Context, req GenerateScriptRequest) (string, error) {
	project, err := o.loadProject(ctx, req.ProjectID)
	if err != nil {
		return "", err
	}
	if project.SubtitlePath == "" {
		return "", errs.Newf("orchestrator: project %s has no subtitles to generate a script from", req.ProjectID).
			Component("orchestrator.generate_script").Category(errs.CategoryInput).Build()
	}
	if o.Chat == nil {
		return "", errs.Newf("orchestrator: no chat model configured").
			Component("orchestrator.generate_script").Category(errs.CategoryDependency).Build()
	}

	subtitleBytes, err := os.ReadFile(project.SubtitlePath)
	if err != nil {
		return "", errs.New(err).Component("orchestrator.generate_script").Category(errs.CategoryInput).
			Context("subtitle_path", project.SubtitlePath).Build()
	}

	defaultKey := script.DefaultPromptKey("")
	promptKey := script.ResolvePromptKey(project.PromptSelection, defaultKey)
	// nil availableKeys: the on-disk pack's _en file (if any) is resolved
	// lazily by PromptPack.load's built-in fallback, so the candidate key
	// is always treated as available here, mirroring script_builder.py's
	// permissive language-variant substitution.
	promptKey = script.WithLanguageVariant(promptKey, project.ScriptLanguage, nil)

	taskID, err := o.Scheduler.Enqueue(ctx, model.ScopeGenerateScript, req.ProjectID,
		o.concurrencyFor(model.ScopeGenerateScript), true,
		func(taskCtx context.Context, projectID, taskID string) (string, error) {
			return o.runGenerateScript(taskCtx, project, req, string(subtitleBytes), promptKey, projectID, taskID)
		})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

func (o *Orchestrator) runGenerateScript(ctx context.Context, project model.Project, req GenerateScriptRequest, subtitleText, promptKey, projectID, taskID string) (string, error) {
	o.emitPhase(model.ScopeGenerateScript, projectID, taskID, "start", "planning script", 1)

	genReq := script.GenerateRequest{
		DramaName:      req.DramaName,
		PlotAnalysis:   req.PlotAnalysis,
		SubtitleText:   subtitleText,
		PromptKey:      promptKey,
		OriginalRatio:  project.OriginalRatio,
		ScriptLength:   project.ScriptLength,
		ScriptLanguage: project.ScriptLanguage,
	}

	o.emitPhase(model.ScopeGenerateScript, projectID, taskID, "generating", "dispatching chunk calls", 10)
	result, err := script.Generate(ctx, o.Chat, o.PromptPack, req.PlotFilter, genReq)
	if err != nil {
		return "", err
	}

	o.emitPhase(model.ScopeGenerateScript, projectID, taskID, "saving", "persisting script", 90)
	now := time.Now()
	result.ProjectID = projectID
	result.Version = now.Format("20060102150405")
	result.CreatedAt = now
	result.Metadata = map[string]any{"created_at": now.Format(time.RFC3339)}

	project.Script = &result
	if err := o.saveProject(ctx, project); err != nil {
		return "", errs.New(err).Component("orchestrator.generate_script").Category(errs.CategoryInternal).Build()
	}

	return "", nil
}
