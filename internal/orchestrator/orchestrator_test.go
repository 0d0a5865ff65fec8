package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/narrationforge/internal/cancelreg"
	"github.com/kestrelmedia/narrationforge/internal/mediaprobe"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/progressstore"
	"github.com/kestrelmedia/narrationforge/internal/providers"
	"github.com/kestrelmedia/narrationforge/internal/scheduler"
	"github.com/kestrelmedia/narrationforge/internal/script"
)

type fakeProjectStore struct {
	mu       sync.Mutex
	projects map[string]model.Project
}

func newFakeProjectStore(projects ...model.Project) *fakeProjectStore {
	s := &fakeProjectStore{projects: make(map[string]model.Project)}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	return s
}

func (s *fakeProjectStore) Get(ctx context.Context, projectID string) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return model.Project{}, assert.AnError
	}
	return p, nil
}

func (s *fakeProjectStore) Put(ctx context.Context, p model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *fakeProjectStore) get(projectID string) model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[projectID]
}

type fakeChatModel struct{ response string }

func (f fakeChatModel) ChatCompletion(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	return providers.ChatResponse{Content: f.response}, nil
}

type fakeTTSProvider struct{ duration float64 }

func (f fakeTTSProvider) Synthesize(ctx context.Context, req providers.SpeechRequest) (providers.SpeechResult, error) {
	return providers.SpeechResult{AudioPath: "/tmp/narration.wav", Duration: f.duration}, nil
}

type fakeASRProvider struct {
	srt      string
	language string
	err      error
}

func (f fakeASRProvider) Transcribe(ctx context.Context, videoPath string) (providers.TranscriptionResult, error) {
	if f.err != nil {
		return providers.TranscriptionResult{}, f.err
	}
	return providers.TranscriptionResult{SRT: f.srt, Language: f.language}, nil
}

func newTestOrchestrator(t *testing.T, store *fakeProjectStore) *Orchestrator {
	t.Helper()
	progress := progressstore.New()
	cancelReg := cancelreg.New()
	sched := scheduler.New(progress, nil, cancelReg)
	return &Orchestrator{
		Scheduler:  sched,
		Store:      progress,
		CancelReg:  cancelReg,
		Projects:   store,
		Prober:     mediaprobe.New("ffprobe"),
		PromptPack: script.NewPromptPack(""),
	}
}

func waitForTask(t *testing.T, o *Orchestrator, scope model.Scope, projectID, taskID string) model.TaskState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, ok := o.Store.GetState(scope, projectID, taskID)
		if ok && state.Status.IsTerminal() {
			return state
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for task completion")
	return model.TaskState{}
}

const sampleSRT = `1
00:00:01,000 --> 00:00:03,000
Hello world

2
00:00:03,500 --> 00:00:06,000
Second line
`

func TestExtractSubtitlesRejectsProjectWithoutVideo(t *testing.T) {
	store := newFakeProjectStore(model.Project{ID: "p1"})
	o := newTestOrchestrator(t, store)
	o.ASR = fakeASRProvider{srt: sampleSRT}

	_, err := o.ExtractSubtitles(context.Background(), ExtractSubtitlesRequest{ProjectID: "p1"})
	require.Error(t, err)
}

func TestExtractSubtitlesRequiresASRProvider(t *testing.T) {
	store := newFakeProjectStore(model.Project{ID: "p1", VideoPath: "video.mp4"})
	o := newTestOrchestrator(t, store)

	_, err := o.ExtractSubtitles(context.Background(), ExtractSubtitlesRequest{ProjectID: "p1"})
	require.Error(t, err)
}

func TestExtractSubtitlesWritesCompressedFileAndUpdatesProject(t *testing.T) {
	dir := t.TempDir()
	store := newFakeProjectStore(model.Project{ID: "p1", VideoPath: "video.mp4"})
	o := newTestOrchestrator(t, store)
	o.ASR = fakeASRProvider{srt: sampleSRT, language: "en"}

	taskID, err := o.ExtractSubtitles(context.Background(), ExtractSubtitlesRequest{
		ProjectID: "p1", SubtitlesDir: dir,
	})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	state := waitForTask(t, o, model.ScopeExtractSubtitles, "p1", taskID)
	require.Equal(t, model.TaskCompleted, state.Status)
	require.NotEmpty(t, state.OutputPath)

	contents, err := os.ReadFile(state.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "[00:00:01,000-00:00:03,000] Hello world")

	updated := store.get("p1")
	assert.Equal(t, state.OutputPath, updated.SubtitlePath)
	assert.Equal(t, "en", updated.ScriptLanguage)
}

func TestExtractSubtitlesDedupsConcurrentRequestsForSameProject(t *testing.T) {
	dir := t.TempDir()
	store := newFakeProjectStore(model.Project{ID: "p1", VideoPath: "video.mp4"})
	o := newTestOrchestrator(t, store)
	o.ASR = fakeASRProvider{srt: sampleSRT}

	id1, err := o.ExtractSubtitles(context.Background(), ExtractSubtitlesRequest{ProjectID: "p1", SubtitlesDir: dir})
	require.NoError(t, err)
	id2, err := o.ExtractSubtitles(context.Background(), ExtractSubtitlesRequest{ProjectID: "p1", SubtitlesDir: dir})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	waitForTask(t, o, model.ScopeExtractSubtitles, "p1", id1)
}

func TestGenerateScriptRejectsProjectWithoutSubtitles(t *testing.T) {
	store := newFakeProjectStore(model.Project{ID: "p1"})
	o := newTestOrchestrator(t, store)
	o.Chat = fakeChatModel{}

	_, err := o.GenerateScript(context.Background(), GenerateScriptRequest{ProjectID: "p1"})
	require.Error(t, err)
}

func TestGenerateScriptPersistsScriptOnProject(t *testing.T) {
	dir := t.TempDir()
	subtitlePath := filepath.Join(dir, "sub.srt")
	require.NoError(t, os.WriteFile(subtitlePath, []byte("[00:00:00,000-00:00:02,000] hello\n"), 0o644))

	store := newFakeProjectStore(model.Project{ID: "p1", VideoPath: "v.mp4", SubtitlePath: subtitlePath, ScriptLength: "1～2条"})
	o := newTestOrchestrator(t, store)
	o.Chat = fakeChatModel{response: `{"items":[{"_id":1,"timestamp":"00:00:00,000-00:00:02,000","picture":"p","narration":"n","OST":0}]}`}

	taskID, err := o.GenerateScript(context.Background(), GenerateScriptRequest{ProjectID: "p1", DramaName: "Test"})
	require.NoError(t, err)

	waitForTask(t, o, model.ScopeGenerateScript, "p1", taskID)

	updated := store.get("p1")
	require.NotNil(t, updated.Script)
	assert.NotEmpty(t, updated.Script.Segments)
	assert.NotEmpty(t, updated.Script.Version)
}

func TestGenerateVideoRejectsProjectWithoutScript(t *testing.T) {
	store := newFakeProjectStore(model.Project{ID: "p1", VideoPath: "v.mp4"})
	o := newTestOrchestrator(t, store)
	o.TTS = fakeTTSProvider{duration: 1}

	_, err := o.GenerateVideo(context.Background(), GenerateVideoRequest{ProjectID: "p1"})
	require.Error(t, err)
}

func TestGenerateDraftRejectsProjectWithoutScript(t *testing.T) {
	store := newFakeProjectStore(model.Project{ID: "p1", VideoPath: "v.mp4"})
	o := newTestOrchestrator(t, store)
	o.TTS = fakeTTSProvider{duration: 1}

	_, err := o.GenerateDraft(context.Background(), GenerateDraftRequest{ProjectID: "p1"})
	require.Error(t, err)
}
