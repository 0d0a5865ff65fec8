package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentMarshalJSONMatchesWireShape(t *testing.T) {
	seg := Segment{
		ID:        1,
		Start:     0,
		End:       5500 * time.Millisecond,
		Narration: "hello there",
		Picture:   "a street at night",
		OST:       false,
	}

	data, err := json.Marshal(seg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "1", raw["id"])
	assert.Equal(t, 0.0, raw["start_time"])
	assert.Equal(t, 5.5, raw["end_time"])
	assert.Equal(t, "hello there", raw["text"])
	assert.Equal(t, "a street at night", raw["subtitle"])
	assert.Equal(t, 0.0, raw["OST"])
	assert.NotContains(t, raw, "narration")
	assert.NotContains(t, raw, "picture")
	assert.NotContains(t, raw, "_id")
}

func TestSegmentMarshalJSONOmitsEmptySubtitle(t *testing.T) {
	seg := Segment{ID: 2, Start: 0, End: time.Second, OST: true}

	data, err := json.Marshal(seg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "subtitle")
	assert.Equal(t, 1.0, raw["OST"])
}

func TestSegmentUnmarshalJSONRoundTrips(t *testing.T) {
	input := []byte(`{"id":"3","start_time":1.5,"end_time":3.0,"text":"n","subtitle":"p","OST":1}`)

	var seg Segment
	require.NoError(t, json.Unmarshal(input, &seg))

	assert.Equal(t, 3, seg.ID)
	assert.Equal(t, 1500*time.Millisecond, seg.Start)
	assert.Equal(t, 3*time.Second, seg.End)
	assert.Equal(t, "n", seg.Narration)
	assert.Equal(t, "p", seg.Picture)
	assert.True(t, seg.OST)
}

func TestSegmentIsOriginal(t *testing.T) {
	cases := []struct {
		name string
		seg  Segment
		want bool
	}{
		{"ost flag set", Segment{OST: true, Narration: "anything"}, true},
		{"plain narration", Segment{Narration: "she walks into the room"}, false},
		{"chinese sentinel", Segment{Narration: "播放原片2"}, true},
		{"english sentinel", Segment{Narration: "Play original footage, continue"}, true},
		{"sentinel with leading space", Segment{Narration: "  播放原片"}, true},
		{"empty narration", Segment{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.seg.IsOriginal())
		})
	}
}

func TestScriptMarshalJSONKeepsCreatedAtOnlyInMetadata(t *testing.T) {
	s := Script{
		Version:       "20260101000000",
		TotalDuration: 10,
		Segments:      []Segment{{ID: 1, End: time.Second}},
		Metadata:      map[string]any{"created_at": "2026-01-01T00:00:00Z"},
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "created_at")
	metadata := raw["metadata"].(map[string]any)
	assert.Equal(t, "2026-01-01T00:00:00Z", metadata["created_at"])
}

func TestTaskStateMarshalJSONMatchesEventWireShape(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	state := TaskState{
		Scope: ScopeGenerateVideo, ProjectID: "p1", TaskID: "t1",
		Status: TaskCompleted, Progress: 100, Phase: "concat",
		Message: "done", OutputPath: "videos/outputs/p1/out.mp4", UpdatedAt: now,
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "completed", raw["type"])
	assert.Equal(t, "videos/outputs/p1/out.mp4", raw["file_path"])
	assert.Equal(t, now.Format(time.RFC3339), raw["timestamp"])
	assert.NotContains(t, raw, "output_path")
	assert.NotContains(t, raw, "updated_at")
}

func TestTaskStateMarshalJSONDerivesTypeFromStatus(t *testing.T) {
	cases := []struct {
		status TaskStatus
		want   EventType
	}{
		{TaskQueued, EventProgress},
		{TaskProcessing, EventProgress},
		{TaskRunning, EventProgress},
		{TaskCompleted, EventCompleted},
		{TaskFailed, EventError},
		{TaskCancelled, EventCancelled},
	}
	for _, c := range cases {
		state := TaskState{Status: c.status}
		data, err := json.Marshal(state)
		require.NoError(t, err)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Equal(t, string(c.want), raw["type"])
	}
}

func TestTaskStateMarshalJSONHonorsExplicitWarningType(t *testing.T) {
	state := TaskState{Status: TaskProcessing, Type: EventWarning, Message: "fallback engaged"}

	data, err := json.Marshal(state)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "warning", raw["type"])
	assert.Equal(t, "processing", raw["status"])
}
