// Package orchestrator provides the thin per-operation facades (component
// J in spec.md §4.10) that glue the scoped scheduler (F) to the video
// pipeline (H), script assembler (G), and draft builder (I) behind the
// capability interfaces in internal/providers.
//
// Grounded on the call shape implied by
// original_source/backend/services/{generate_script_service.py,
// video_generation_service.py, jianying_draft_service.py,
// extract_subtitle_service.py} and backend/routes/generate_routes.py
// (service-layer function per HTTP route, the route layer itself being
// out of scope per spec.md §1). Each facade here is the part of that
// service layer spec.md keeps: validate prerequisites, publish a start
// event, run the pipeline, catch and republish errors, hand a RunFunc to
// the scheduler rather than ever scheduling itself.
package orchestrator

import (
	"context"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/cancelreg"
	"github.com/kestrelmedia/narrationforge/internal/conf"
	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/eventbus"
	"github.com/kestrelmedia/narrationforge/internal/logging"
	"github.com/kestrelmedia/narrationforge/internal/mediaprobe"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/pipeline"
	"github.com/kestrelmedia/narrationforge/internal/progressstore"
	"github.com/kestrelmedia/narrationforge/internal/providers"
	"github.com/kestrelmedia/narrationforge/internal/scheduler"
	"github.com/kestrelmedia/narrationforge/internal/script"
)

var logger = logging.ForService("orchestrator")

// Orchestrator wires components A-I behind providers.* interfaces and
// exposes one facade per operation a route would enqueue. It never
// imports a route/HTTP package and is never itself the scheduler.
type Orchestrator struct {
	Scheduler *scheduler.Scheduler
	Bus       *eventbus.Bus
	Store     *progressstore.Store
	CancelReg *cancelreg.Registry
	Settings  *conf.Settings

	Projects providers.ProjectStore
	Chat     providers.ChatModel
	TTS      providers.TTSProvider
	ASR      providers.ASRProvider

	Prober     *mediaprobe.Prober
	PromptPack *script.PromptPack
	FFmpegPath string
}

// New builds an Orchestrator from its already-constructed dependencies.
// Callers assemble the singletons (scheduler, bus, store, cancel
// registry) once at startup per spec.md §9's "explicit singletons, not
// ambient imports" design note and pass them here.
func New(
	sched *scheduler.Scheduler,
	bus *eventbus.Bus,
	store *progressstore.Store,
	cancelReg *cancelreg.Registry,
	settings *conf.Settings,
	projects providers.ProjectStore,
	chat providers.ChatModel,
	tts providers.TTSProvider,
	asr providers.ASRProvider,
	prober *mediaprobe.Prober,
	promptPack *script.PromptPack,
) *Orchestrator {
	return &Orchestrator{
		Scheduler:  sched,
		Bus:        bus,
		Store:      store,
		CancelReg:  cancelReg,
		Settings:   settings,
		Projects:   projects,
		Chat:       chat,
		TTS:        tts,
		ASR:        asr,
		Prober:     prober,
		PromptPack: promptPack,
	}
}

// concurrencyFor resolves scope's effective worker count through
// conf.Settings, falling back to the scope's recommended value when no
// Settings is configured (tests construct an Orchestrator without one).
func (o *Orchestrator) concurrencyFor(scope model.Scope) int {
	if o.Settings == nil {
		return conf.RecommendConcurrency(scope)
	}
	n, _ := o.Settings.EffectiveConcurrency(scope)
	return n
}

// emitPhase writes an intermediate (non-terminal) progress update to the
// store and then the bus, preserving the store-then-broadcast ordering
// invariant spec.md §4.6 requires of every state transition, not just the
// scheduler's own queued/processing/terminal ones.
func (o *Orchestrator) emitPhase(scope model.Scope, projectID, taskID, phase, message string, progress int) {
	state := model.TaskState{
		Scope:     scope,
		ProjectID: projectID,
		TaskID:    taskID,
		Status:    model.TaskProcessing,
		Progress:  progress,
		Phase:     phase,
		Message:   errs.RedactMessage(message),
		UpdatedAt: time.Now(),
	}
	if o.Store != nil {
		o.Store.SetState(state)
	}
	if o.Bus != nil {
		o.Bus.Publish(state)
	}
}

// emitWarning publishes a non-terminal warning event for a task already in
// progress, mirroring emitPhase's store-then-bus ordering but tagged
// EventWarning instead of being derived from TaskProcessing, so a pipeline
// fallback (e.g. a failed audio replacement) reaches external subscribers
// per spec.md §4.8 without ending the task.
func (o *Orchestrator) emitWarning(scope model.Scope, projectID, taskID, phase, message string) {
	progress := 0
	if o.Store != nil {
		if prev, ok := o.Store.GetState(scope, projectID, taskID); ok {
			progress = prev.Progress
		}
	}
	state := model.TaskState{
		Scope:     scope,
		ProjectID: projectID,
		TaskID:    taskID,
		Status:    model.TaskProcessing,
		Type:      model.EventWarning,
		Progress:  progress,
		Phase:     phase,
		Message:   errs.RedactMessage(message),
		UpdatedAt: time.Now(),
	}
	if o.Store != nil {
		o.Store.SetState(state)
	}
	if o.Bus != nil {
		o.Bus.Publish(state)
	}
}

// loadProject fetches projectID from the store, wrapping a not-found or
// store error as an input_invalid failure so every facade reports the
// same error shape for a missing project.
func (o *Orchestrator) loadProject(ctx context.Context, projectID string) (model.Project, error) {
	p, err := o.Projects.Get(ctx, projectID)
	if err != nil {
		return model.Project{}, errs.New(err).Component("orchestrator").Category(errs.CategoryInput).
			Context("project_id", projectID).Build()
	}
	return p, nil
}

func (o *Orchestrator) saveProject(ctx context.Context, p model.Project) error {
	p.UpdatedAt = time.Now()
	return o.Projects.Put(ctx, p)
}

func (o *Orchestrator) pipeline() *pipeline.Pipeline {
	return pipeline.New(o.FFmpegPath, o.Prober)
}

func (o *Orchestrator) hook(scope model.Scope, projectID, taskID string) *pipeline.CancelHook {
	return &pipeline.CancelHook{Registry: o.CancelReg, Scope: string(scope), ProjectID: projectID, TaskID: taskID}
}
