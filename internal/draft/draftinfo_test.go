package draft

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDraftInfoProducesExpectedTracksAndMaterials(t *testing.T) {
	dir := t.TempDir()
	meta := videoMeta{Width: 1920, Height: 1080, FPS: 30, Duration: 10_000_000_000}
	items := []TimelineItem{
		{DurationUS: 2_000_000, SourceStartUS: 0},
		{DurationUS: 3_000_000, SourceStartUS: 2_000_000, Mute: true, NarrationPath: "/tmp/a.mp3", NarrationDurationUS: 3_000_000},
	}

	require.NoError(t, writeDraftInfo(dir, filepath.Join(dir, "source.mp4"), meta, items))

	raw, err := os.ReadFile(filepath.Join(dir, "draft_info.json"))
	require.NoError(t, err)

	var info draftInfo
	require.NoError(t, json.Unmarshal(raw, &info))

	assert.Equal(t, 1920, info.CanvasConfig.Width)
	assert.Equal(t, 1080, info.CanvasConfig.Height)
	assert.Equal(t, int64(5_000_000), info.Duration)
	assert.Len(t, info.Materials.Videos, 1)
	assert.Len(t, info.Materials.Audios, 1)
	assert.Len(t, info.Tracks, 3)

	var videoTrack, audioTrack track
	for _, tr := range info.Tracks {
		switch tr.Name {
		case "video_main":
			videoTrack = tr
		case "audio_main":
			audioTrack = tr
		}
	}
	assert.Len(t, videoTrack.Segments, 2)
	assert.Len(t, audioTrack.Segments, 1)
	assert.Equal(t, int64(2_000_000), audioTrack.Segments[0].TargetTimerange.Start)
	assert.Equal(t, float64(0), videoTrack.Segments[1].Volume, "muted segment must report silent original audio")
	assert.Equal(t, float64(1), videoTrack.Segments[0].Volume)
}

func TestWriteDraftInfoBacksUpExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "draft_info.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"old":true}`), 0o644))

	meta := videoMeta{Width: 100, Height: 100, FPS: 25}
	require.NoError(t, writeDraftInfo(dir, filepath.Join(dir, "source.mp4"), meta, []TimelineItem{
		{DurationUS: 1_000_000},
	}))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.JSONEq(t, `{"old":true}`, string(backup))
}

func TestNewEmptyMaterialsMarshalsAlwaysEmptyFieldsAsArraysNotNull(t *testing.T) {
	mats := newEmptyMaterials()
	raw, err := json.Marshal(mats)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "null")
}
