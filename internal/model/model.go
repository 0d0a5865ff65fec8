// Package model holds the data types shared across NarrationForge's
// components: projects, scripts, segments, task state, and the scope
// names that drive concurrency.
package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Scope names the kind of work a task performs. Each scope has its own
// worker pool and concurrency budget.
type Scope string

const (
	ScopeGenerateVideo    Scope = "generate_video"
	ScopeGenerateDraft    Scope = "generate_jianying_draft"
	ScopeTTS              Scope = "tts"
	ScopeGenerateScript   Scope = "generate_script"
	ScopeExtractSubtitles Scope = "extract_subtitles"
	ScopeFunASRModels     Scope = "fun_asr_models"
	ScopeQwen3TTSModels   Scope = "qwen3_tts_models"
)

// PromptRef selects a prompt template: either one of the built-in
// ("official") templates keyed by Key, or a user-authored template.
type PromptRef struct {
	Type string `json:"type"` // "official" or "user"
	Key  string `json:"key"`
}

// ProjectStatus is a project's overall lifecycle stage, mirroring spec.md
// §3's status enum.
type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectProcessing ProjectStatus = "processing"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectFailed     ProjectStatus = "failed"
)

// Project is the unit of work: a source video plus its subtitles, script,
// and generation settings.
type Project struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	VideoPath        string               `json:"video_path"`
	SubtitlePath     string               `json:"subtitle_path,omitempty"`
	AudioPath        string               `json:"audio_path,omitempty"`
	Script           *Script              `json:"script,omitempty"`
	OutputVideoPath  string               `json:"output_video_path,omitempty"`
	Status           ProjectStatus        `json:"status"`
	ScriptLanguage   string               `json:"script_language"`
	OriginalRatio    int                  `json:"original_ratio"` // percent of runtime kept as original footage, 10-90
	ScriptLength     string               `json:"script_length"`  // raw user selection, e.g. "20～30条"
	PromptSelection  map[string]PromptRef `json:"prompt_selection,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// SubtitleSegment is one parsed subtitle cue.
type SubtitleSegment struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Segment is one item of a narration script: a time window of the source
// video, either played as original footage (OST) or replaced with narration.
// Its JSON form is the spec.md §6 "Script JSON" segment shape, not this
// struct's field names — see MarshalJSON/UnmarshalJSON.
type Segment struct {
	ID        int
	Start     time.Duration
	End       time.Duration
	Narration string // empty when OST
	Picture   string // on-screen description / b-roll hint
	OST       bool   // true: play original audio/video unmodified
}

// Duration returns the segment's source time window length.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// originalSentinelZH and originalSentinelEN are the narration-text prefixes
// that mark a segment as original-audio even when OST wasn't set, mirroring
// video_generation_service.py's is_original check.
const (
	originalSentinelZH = "播放原片"
	originalSentinelEN = "play original footage"
)

// IsOriginal reports whether the segment plays source audio/video
// unmodified rather than being replaced with synthesized narration: true
// when OST is set, or when the narration text itself begins with the
// original-footage sentinel literal.
func (s Segment) IsOriginal() bool {
	if s.OST {
		return true
	}
	text := strings.TrimSpace(s.Narration)
	return strings.HasPrefix(text, originalSentinelZH) ||
		strings.HasPrefix(strings.ToLower(text), originalSentinelEN)
}

// segmentWire is the spec.md §6 Script JSON segment shape: string id, float
// seconds, and the text/subtitle/OST key names external consumers expect.
type segmentWire struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
	Subtitle  string  `json:"subtitle,omitempty"`
	OST       int     `json:"OST"`
}

// MarshalJSON renders the segment in the persisted/exchanged wire shape,
// converting the in-memory time.Duration fields to float seconds the way
// draft/timeline.go's usOf converts to microseconds for its own wire format.
func (s Segment) MarshalJSON() ([]byte, error) {
	ost := 0
	if s.OST {
		ost = 1
	}
	return json.Marshal(segmentWire{
		ID:        strconv.Itoa(s.ID),
		StartTime: s.Start.Seconds(),
		EndTime:   s.End.Seconds(),
		Text:      s.Narration,
		Subtitle:  s.Picture,
		OST:       ost,
	})
}

// UnmarshalJSON parses the persisted/exchanged wire shape back into the
// in-memory representation. A non-numeric id parses as 0 rather than
// failing, since renumbering on load is the caller's responsibility.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var w segmentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, _ := strconv.Atoi(w.ID)
	*s = Segment{
		ID:        id,
		Start:     time.Duration(w.StartTime * float64(time.Second)),
		End:       time.Duration(w.EndTime * float64(time.Second)),
		Narration: w.Text,
		Picture:   w.Subtitle,
		OST:       w.OST == 1,
	}
	return nil
}

// Script is an ordered, renumbered set of segments covering a project's
// narration plan, persisted and exchanged per spec.md §6's wire format.
type Script struct {
	ProjectID     string         `json:"project_id,omitempty"`
	Version       string         `json:"version"`         // "YYYYMMDDHHMMSS", set when persisted
	TotalDuration float64        `json:"total_duration"` // seconds
	Segments      []Segment      `json:"segments"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"-"` // wire record keeps this only inside Metadata["created_at"]
}

// ScriptTargetPlan is the resolved form of Project.ScriptLength: a target
// item-count range plus the number of chunked LM calls to make.
//
// Grounded on original_source's script_generation/length_planner.py
// ScriptTargetPlan dataclass.
type ScriptTargetPlan struct {
	NormalizedSelection string
	TargetMin           int
	TargetMax           int
	PreferredCalls      int
	FinalTargetCount    int
}

// PlanItem is one LM-authored narration item before it is merged into a
// Segment, as returned by a single chunk or refine call.
type PlanItem struct {
	ID        int           `json:"_id"`
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
	Narration string        `json:"narration"`
	Picture   string        `json:"picture"`
	OST       bool          `json:"ost"`
}

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskRunning    TaskStatus = "running"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status will never change further.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// EventType classifies a broadcast event the way external subscribers
// expect, distinct from (but usually derived from) the task's own
// lifecycle Status — spec.md §6's event wire format.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
	EventWarning   EventType = "warning"
)

// TaskState is a snapshot of a task's progress, as stored by the progress
// store and broadcast over the event bus. Type is usually left zero and
// derived from Status at marshal time; set it explicitly to publish a
// non-terminal EventWarning alongside an otherwise-processing task.
type TaskState struct {
	Scope           Scope
	ProjectID       string
	TaskID          string
	Status          TaskStatus
	Type            EventType
	Progress        int // 0-100
	Phase           string
	Message         string
	OutputPath      string
	Error           string
	DownloadedBytes int64 // model download progress, spec.md §6
	TotalBytes      int64
	UpdatedAt       time.Time
}

// eventType resolves the wire "type" field: an explicitly set Type wins,
// otherwise it is derived from Status.
func (s TaskState) eventType() EventType {
	if s.Type != "" {
		return s.Type
	}
	switch s.Status {
	case TaskCompleted:
		return EventCompleted
	case TaskFailed:
		return EventError
	case TaskCancelled:
		return EventCancelled
	default:
		return EventProgress
	}
}

// MarshalJSON renders the state in spec.md §6's event wire format:
// "type", "timestamp", and "file_path" rather than this struct's own
// field names.
func (s TaskState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type            EventType  `json:"type"`
		Scope           Scope      `json:"scope"`
		ProjectID       string     `json:"project_id"`
		TaskID          string     `json:"task_id"`
		Status          TaskStatus `json:"status"`
		Progress        int        `json:"progress"`
		Phase           string     `json:"phase,omitempty"`
		Message         string     `json:"message,omitempty"`
		FilePath        string     `json:"file_path,omitempty"`
		Error           string     `json:"error,omitempty"`
		DownloadedBytes int64      `json:"downloaded_bytes,omitempty"`
		TotalBytes      int64      `json:"total_bytes,omitempty"`
		Timestamp       time.Time  `json:"timestamp"`
	}{
		Type:            s.eventType(),
		Scope:           s.Scope,
		ProjectID:       s.ProjectID,
		TaskID:          s.TaskID,
		Status:          s.Status,
		Progress:        s.Progress,
		Phase:           s.Phase,
		Message:         s.Message,
		FilePath:        s.OutputPath,
		Error:           s.Error,
		DownloadedBytes: s.DownloadedBytes,
		TotalBytes:      s.TotalBytes,
		Timestamp:       s.UpdatedAt,
	})
}

// IsActive reports whether the state represents in-flight work, mirroring
// task_progress_store.py's get_latest_running predicate.
func (s TaskState) IsActive() bool {
	switch s.Status {
	case TaskRunning, TaskProcessing, TaskQueued:
		return true
	default:
		return false
	}
}
