// Package scheduler implements the per-scope FIFO task scheduler: one
// bounded worker pool per scope, deduplication by (scope, project), and
// poison-pill based pool resizing.
//
// Grounded directly on
// original_source/backend/modules/task_scheduler.py: ScopeState's
// queue/pending/running/dedup maps, enqueue's dedup check, the worker
// loop's cancelled/processing/completed/failed emission sequence, and the
// store-then-broadcast ordering in _emit. Clock is modeled on the
// teacher's internal/analysis/jobqueue Clock interface so tests can control
// time without sleeping.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelmedia/narrationforge/internal/cancelreg"
	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/eventbus"
	"github.com/kestrelmedia/narrationforge/internal/logging"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/progressstore"
)

var logger = logging.ForService("scheduler")

// Clock abstracts time so tests can control task ID timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock is the default Clock, backed by time.Now.
type RealClock struct{}

// Now returns the current wall-clock time.
func (RealClock) Now() time.Time { return time.Now() }

// RunFunc is the work a scheduled task performs. It must respect ctx
// cancellation. outputPath, if non-empty, is recorded on the completed
// TaskState, mirroring task_scheduler.py's file_path/output_path
// extraction from the run_fn's result dict.
type RunFunc func(ctx context.Context, projectID, taskID string) (outputPath string, err error)

type taskItem struct {
	taskID    string
	projectID string
	run       RunFunc
}

type scopeState struct {
	scope       model.Scope
	concurrency int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string // task IDs; empty string is the poison pill sentinel
	pending map[string]taskItem
	running map[string]struct{}
	dedup   map[string]string // projectID -> taskID
	workers int                // number of live worker goroutines
}

func newScopeState(scope model.Scope, concurrency int) *scopeState {
	s := &scopeState{
		scope:       scope,
		concurrency: maxInt(1, concurrency),
		pending:     make(map[string]taskItem),
		running:     make(map[string]struct{}),
		dedup:       make(map[string]string),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Scheduler dispatches tasks across scopes, each with its own concurrency
// budget, deduplicating same-project tasks within a scope.
type Scheduler struct {
	mu     sync.Mutex
	scopes map[model.Scope]*scopeState

	store     *progressstore.Store
	bus       *eventbus.Bus
	cancelReg *cancelreg.Registry
	clock     Clock
}

// New creates a Scheduler wired to the given progress store, event bus, and
// cancellation registry.
func New(store *progressstore.Store, bus *eventbus.Bus, cancelReg *cancelreg.Registry) *Scheduler {
	return &Scheduler{
		scopes:    make(map[model.Scope]*scopeState),
		store:     store,
		bus:       bus,
		cancelReg: cancelReg,
		clock:     RealClock{},
	}
}

// SetClock overrides the scheduler's clock, for tests that need
// deterministic task IDs.
func (s *Scheduler) SetClock(c Clock) { s.clock = c }

// ensureScope returns the ScopeState for scope, creating it (and its
// workers) with the given concurrency if it doesn't exist yet, or resizing
// it to match otherwise — mirroring ensure_scope.
func (s *Scheduler) ensureScope(ctx context.Context, scope model.Scope, concurrency int) *scopeState {
	s.mu.Lock()
	ss, ok := s.scopes[scope]
	if !ok {
		ss = newScopeState(scope, concurrency)
		s.scopes[scope] = ss
		s.mu.Unlock()
		for i := 0; i < ss.concurrency; i++ {
			ss.workers++
			go s.worker(ctx, ss)
		}
		return ss
	}
	s.mu.Unlock()
	s.Resize(ctx, scope, concurrency)
	return ss
}

// Enqueue places a new task on scope's queue for project, returning its
// task ID. If dedup is true and a pending or running task already exists
// for the same (scope, project), that existing task ID is returned
// instead of starting a new one — mirroring enqueue's dedup branch.
func (s *Scheduler) Enqueue(ctx context.Context, scope model.Scope, projectID string, concurrency int, dedup bool, run RunFunc) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("scheduler: project_id is required")
	}
	if run == nil {
		return "", fmt.Errorf("scheduler: run function is required")
	}

	ss := s.ensureScope(ctx, scope, concurrency)

	ss.mu.Lock()
	if dedup {
		if existing, ok := ss.dedup[projectID]; ok {
			if _, pending := ss.pending[existing]; pending {
				ss.mu.Unlock()
				return existing, nil
			}
			if _, running := ss.running[existing]; running {
				ss.mu.Unlock()
				return existing, nil
			}
		}
	}

	taskID := newTaskID(scope, projectID, s.clock.Now())
	ss.pending[taskID] = taskItem{taskID: taskID, projectID: projectID, run: run}
	if dedup {
		ss.dedup[projectID] = taskID
	}
	ss.queue = append(ss.queue, taskID)
	ss.cond.Signal()
	ss.mu.Unlock()

	s.emit(model.TaskState{
		Scope: scope, ProjectID: projectID, TaskID: taskID,
		Status: model.TaskQueued, Progress: 0, Message: "queued",
	})
	return taskID, nil
}

func newTaskID(scope model.Scope, projectID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("%s_%s_%s_%s", scope, projectID, now.Format("20060102_150405"), suffix)
}

// Cancel stops taskID if it is pending (removing it from the queue without
// ever running) or currently running (via the cancellation registry).
// Mirrors task_scheduler.py's cancel, which checks running before pending.
func (s *Scheduler) Cancel(scope model.Scope, projectID, taskID string) bool {
	s.mu.Lock()
	ss, ok := s.scopes[scope]
	s.mu.Unlock()
	if !ok || taskID == "" {
		return false
	}

	ss.mu.Lock()
	if _, running := ss.running[taskID]; running {
		ss.mu.Unlock()
		return s.cancelReg.Cancel(string(scope), projectID, taskID)
	}

	item, pending := ss.pending[taskID]
	if !pending {
		ss.mu.Unlock()
		return false
	}
	delete(ss.pending, taskID)
	if ss.dedup[projectID] == taskID {
		delete(ss.dedup, projectID)
	}
	ss.queue = removeFromQueue(ss.queue, taskID)
	ss.mu.Unlock()

	s.emit(model.TaskState{
		Scope: scope, ProjectID: item.projectID, TaskID: taskID,
		Status: model.TaskCancelled, Progress: 0, Message: "stopped",
	})
	return true
}

func removeFromQueue(queue []string, taskID string) []string {
	out := queue[:0]
	for _, id := range queue {
		if id != taskID {
			out = append(out, id)
		}
	}
	return out
}

// Resize changes scope's worker count, spawning new workers or pushing
// poison pills to shrink, mirroring resize.
func (s *Scheduler) Resize(ctx context.Context, scope model.Scope, concurrency int) {
	concurrency = maxInt(1, concurrency)

	s.mu.Lock()
	ss, ok := s.scopes[scope]
	s.mu.Unlock()
	if !ok {
		s.ensureScope(ctx, scope, concurrency)
		return
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if concurrency == ss.concurrency {
		return
	}
	diff := concurrency - ss.workers
	ss.concurrency = concurrency
	if diff > 0 {
		for i := 0; i < diff; i++ {
			ss.workers++
			go s.worker(ctx, ss)
		}
	} else if diff < 0 {
		for i := 0; i < -diff; i++ {
			ss.queue = append([]string{""}, ss.queue...) // poison pill, jumps the queue
			ss.cond.Signal()
		}
	}
}

// Shutdown stops every worker across every scope by pushing one poison
// pill per live worker, mirroring shutdown.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	scopes := make([]*scopeState, 0, len(s.scopes))
	for _, ss := range s.scopes {
		scopes = append(scopes, ss)
	}
	s.mu.Unlock()

	for _, ss := range scopes {
		ss.mu.Lock()
		for i := 0; i < ss.workers; i++ {
			ss.queue = append(ss.queue, "")
		}
		ss.cond.Broadcast()
		ss.mu.Unlock()
	}
}

// worker pulls task IDs off scope's queue and runs them one at a time,
// mirroring _worker's cancelled/processing/completed/failed sequence.
func (s *Scheduler) worker(ctx context.Context, ss *scopeState) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in scheduler worker", "scope", ss.scope, "panic", r)
		}
	}()

	for {
		ss.mu.Lock()
		for len(ss.queue) == 0 {
			ss.cond.Wait()
		}
		taskID := ss.queue[0]
		ss.queue = ss.queue[1:]
		if taskID == "" {
			ss.workers--
			ss.mu.Unlock()
			return
		}
		item, ok := ss.pending[taskID]
		delete(ss.pending, taskID)
		ss.mu.Unlock()
		if !ok {
			continue
		}

		s.runOne(ctx, ss, item)
	}
}

func (s *Scheduler) runOne(ctx context.Context, ss *scopeState, item taskItem) {
	taskCtx, release := s.cancelReg.Register(ctx, string(ss.scope), item.projectID, item.taskID)
	defer release()

	if s.cancelReg.IsCancelled(string(ss.scope), item.projectID, item.taskID) {
		s.emit(model.TaskState{Scope: ss.scope, ProjectID: item.projectID, TaskID: item.taskID,
			Status: model.TaskCancelled, Progress: 0, Message: "stopped"})
		return
	}

	s.emit(model.TaskState{Scope: ss.scope, ProjectID: item.projectID, TaskID: item.taskID,
		Status: model.TaskProcessing, Progress: 1, Message: "starting"})

	ss.mu.Lock()
	ss.running[item.taskID] = struct{}{}
	ss.mu.Unlock()

	defer func() {
		ss.mu.Lock()
		delete(ss.running, item.taskID)
		if ss.dedup[item.projectID] == item.taskID {
			delete(ss.dedup, item.projectID)
		}
		ss.mu.Unlock()
	}()

	outputPath, err := item.run(taskCtx, item.projectID, item.taskID)
	switch {
	case err != nil && taskCtx.Err() != nil:
		s.emit(model.TaskState{Scope: ss.scope, ProjectID: item.projectID, TaskID: item.taskID,
			Status: model.TaskCancelled, Progress: 0, Message: "stopped"})
	case err != nil:
		msg := errs.RedactMessage(err.Error())
		s.emit(model.TaskState{Scope: ss.scope, ProjectID: item.projectID, TaskID: item.taskID,
			Status: model.TaskFailed, Progress: 0, Message: msg, Error: msg})
	default:
		s.emit(model.TaskState{Scope: ss.scope, ProjectID: item.projectID, TaskID: item.taskID,
			Status: model.TaskCompleted, Progress: 100, Message: "done", OutputPath: outputPath})
	}
}

// emit writes to the progress store first, then broadcasts on the event
// bus, preserving the store-then-broadcast ordering invariant of
// task_scheduler.py's _emit.
func (s *Scheduler) emit(state model.TaskState) {
	state.UpdatedAt = s.clock.Now()
	if s.store != nil {
		s.store.SetState(state)
	}
	if s.bus != nil {
		s.bus.Publish(state)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
