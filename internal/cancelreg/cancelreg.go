// Package cancelreg is the cancellation registry: one cancellation signal
// per (scope, project, task), plus registration of the subprocesses that
// signal should terminate.
//
// The Python original's task_cancel_store.py is not present in the
// retrieval pack (see DESIGN.md Open Questions); this package is
// reconstructed from its call-site usage throughout video_processor.py
// (_register_proc/_unregister_proc wrapping an externally registered
// process, cancel_event.wait() raced against ffmpeg progress loops) and
// spec.md §4.5's registry contract.
package cancelreg

import (
	"context"
	"sync"
)

// Killable is anything cancellation can terminate — ffmpegproc.Runner
// satisfies this with its Stop method.
type Killable interface {
	Stop() error
}

type entry struct {
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	procs      []Killable
	cancelled  bool
}

// Registry tracks cancellation signals keyed by (scope, project, task).
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func key(scope, projectID, taskID string) string {
	return scope + "::" + projectID + "::" + taskID
}

// Register creates a cancellable context for (scope, project, task),
// derived from parent. The returned context is cancelled when Cancel is
// called for the same key, or when release() is invoked by the owning
// task on completion — whichever happens first.
func (r *Registry) Register(parent context.Context, scope, projectID, taskID string) (ctx context.Context, release func()) {
	ctx, cancel := context.WithCancel(parent)
	e := &entry{ctx: ctx, cancel: cancel}

	k := key(scope, projectID, taskID)
	r.mu.Lock()
	r.entries[k] = e
	r.mu.Unlock()

	return ctx, func() {
		r.mu.Lock()
		if r.entries[k] == e {
			delete(r.entries, k)
		}
		r.mu.Unlock()
		cancel()
	}
}

// RegisterProcess attaches a subprocess to (scope, project, task) so that
// a later Cancel also terminates it directly, instead of relying only on
// context propagation — mirroring video_processor.py's _register_proc,
// which is used because ffmpeg doesn't always respond promptly to a
// cancelled context alone.
func (r *Registry) RegisterProcess(scope, projectID, taskID string, proc Killable) {
	k := key(scope, projectID, taskID)
	r.mu.Lock()
	e, ok := r.entries[k]
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled {
		_ = proc.Stop()
		return
	}
	e.procs = append(e.procs, proc)
}

// UnregisterProcess removes proc from (scope, project, task)'s tracked
// process list once it has exited normally.
func (r *Registry) UnregisterProcess(scope, projectID, taskID string, proc Killable) {
	k := key(scope, projectID, taskID)
	r.mu.Lock()
	e, ok := r.entries[k]
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.procs {
		if p == proc {
			e.procs = append(e.procs[:i], e.procs[i+1:]...)
			break
		}
	}
}

// Cancel cancels the context for (scope, project, task) and stops every
// subprocess currently registered against it. It is idempotent: cancelling
// an already-completed or already-cancelled task is a no-op, matching
// spec.md §4.5.
func (r *Registry) Cancel(scope, projectID, taskID string) bool {
	k := key(scope, projectID, taskID)
	r.mu.Lock()
	e, ok := r.entries[k]
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return false
	}
	e.cancelled = true
	procs := e.procs
	e.procs = nil
	e.mu.Unlock()

	e.cancel()
	for _, p := range procs {
		_ = p.Stop()
	}
	return true
}

// IsCancelled reports whether (scope, project, task) has been cancelled.
func (r *Registry) IsCancelled(scope, projectID, taskID string) bool {
	k := key(scope, projectID, taskID)
	r.mu.Lock()
	e, ok := r.entries[k]
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}
