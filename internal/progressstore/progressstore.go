// Package progressstore holds the latest known TaskState for every
// (scope, project, task), plus an index of the currently-active task per
// (project, scope) pair.
//
// Grounded directly on
// original_source/backend/modules/task_progress_store.py: the same key
// shape, the same "preserve unset fields on update" merge semantics, and
// the same get_latest_running predicate.
package progressstore

import (
	"sync"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

type projectScopeKey struct {
	ProjectID string
	Scope     model.Scope
}

type stateKey struct {
	Scope     model.Scope
	ProjectID string
	TaskID    string
}

// Store is the in-memory progress state holder, safe for concurrent use
// from the scheduler's workers and HTTP/WebSocket readers.
type Store struct {
	mu     sync.RWMutex
	states map[stateKey]model.TaskState
	active map[projectScopeKey]string // latest task_id per (project, scope)
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		states: make(map[stateKey]model.TaskState),
		active: make(map[projectScopeKey]string),
	}
}

// SetState overwrites (or creates) the state for (scope, project, taskID),
// preserving fields the caller left zero-valued when a prior state exists
// for the same key — mirroring task_progress_store.py's set_state.
func (s *Store) SetState(state model.TaskState) {
	key := stateKey{Scope: state.Scope, ProjectID: state.ProjectID, TaskID: state.TaskID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.states[key]; ok {
		state = mergePreservingUnset(prev, state)
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	s.states[key] = state

	pk := projectScopeKey{ProjectID: state.ProjectID, Scope: state.Scope}
	if state.IsActive() {
		s.active[pk] = state.TaskID
	} else if s.active[pk] == state.TaskID {
		delete(s.active, pk)
	}
}

// mergePreservingUnset fills zero-valued fields of next from prev, the way
// the Python original preserves unset fields across partial updates.
func mergePreservingUnset(prev, next model.TaskState) model.TaskState {
	if next.Message == "" {
		next.Message = prev.Message
	}
	if next.OutputPath == "" {
		next.OutputPath = prev.OutputPath
	}
	if next.Error == "" {
		next.Error = prev.Error
	}
	return next
}

// GetState returns the state for (scope, project, taskID). If taskID is
// empty, it looks up the currently active task for (project, scope) first,
// mirroring get_state's task-omitted branch.
func (s *Store) GetState(scope model.Scope, projectID, taskID string) (model.TaskState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if taskID == "" {
		pk := projectScopeKey{ProjectID: projectID, Scope: scope}
		taskID = s.active[pk]
		if taskID == "" {
			return model.TaskState{}, false
		}
	}

	state, ok := s.states[stateKey{Scope: scope, ProjectID: projectID, TaskID: taskID}]
	return state, ok
}

// GetLatestRunning returns the state for (scope, project) only if it
// represents active work, mirroring get_latest_running.
func (s *Store) GetLatestRunning(scope model.Scope, projectID string) (model.TaskState, bool) {
	state, ok := s.GetState(scope, projectID, "")
	if !ok || !state.IsActive() {
		return model.TaskState{}, false
	}
	return state, true
}
