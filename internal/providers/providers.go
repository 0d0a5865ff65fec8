// Package providers defines the capability interfaces NarrationForge's
// components depend on: chat-completion language models, text-to-speech,
// subtitle transcription, and project persistence.
//
// Grounded on the teacher's internal/imageprovider.ImageProvider interface
// (a single narrow capability interface implemented by swappable backends)
// and original_source/backend/modules/ai/base.py's AIProviderBase
// (ChatMessage/ChatResponse shape, response_format plumbing, retry-at-the-
// caller convention). Concrete HTTP-backed implementations are out of
// scope here; callers inject a ChatModel/TTSProvider/ASRProvider/
// ProjectStore built for their own deployment.
package providers

import (
	"context"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

// ChatMessage is one turn of a chat-completion request.
type ChatMessage struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// ChatRequest bundles a chat-completion call's full input, mirroring
// ai_service.send_chat's response_format plumbing.
type ChatRequest struct {
	Messages     []ChatMessage
	JSONResponse bool // request_format={"type":"json_object"}, mirrored from ai/base.py
	Temperature  float64
}

// ChatResponse is a chat-completion result.
type ChatResponse struct {
	Content      string
	Model        string
	FinishReason string
}

// ChatModel is a language-model backend capable of chat completion. Script
// generation (internal/script) calls this for per-chunk narration drafts
// and the global refine pass.
type ChatModel interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// SpeechRequest is one text-to-speech synthesis call.
type SpeechRequest struct {
	Text     string
	Voice    string
	Language string
}

// SpeechResult is a synthesized narration clip.
type SpeechResult struct {
	AudioPath string
	Duration  float64 // seconds; zero means the caller must probe it
}

// TTSProvider synthesizes narration audio for a script segment.
type TTSProvider interface {
	Synthesize(ctx context.Context, req SpeechRequest) (SpeechResult, error)
}

// TranscriptionResult is a subtitle extraction result in SRT text form,
// ready for internal/script.ParseSubtitles.
type TranscriptionResult struct {
	SRT      string
	Language string
}

// ASRProvider extracts timestamped subtitles from a source video's audio
// track.
type ASRProvider interface {
	Transcribe(ctx context.Context, videoPath string) (TranscriptionResult, error)
}

// ProjectStore persists project records across process restarts. Concrete
// implementations may be file-backed JSON (mirroring
// original_source/backend/modules/projects_store.py) or any other
// key-value store; NarrationForge's components only depend on this
// interface.
type ProjectStore interface {
	Get(ctx context.Context, projectID string) (model.Project, error)
	Put(ctx context.Context, project model.Project) error
}
