package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptPackFallsBackToBuiltinWhenNoFileExists(t *testing.T) {
	pack := NewPromptPack(t.TempDir())
	msgs, err := pack.BuildChatMessages("short_drama_narration:script_generation", map[string]string{
		"drama_name": "My Drama",
	})
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0].Content, "My Drama")
}

func TestPromptPackLoadsFromDiskWhenPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "short_drama_narration"), 0o755))
	yamlContent := "messages:\n  - role: system\n    content: \"custom prompt for {{drama_name}}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short_drama_narration", "script_generation.yaml"), []byte(yamlContent), 0o644))

	pack := NewPromptPack(dir)
	msgs, err := pack.BuildChatMessages("short_drama_narration:script_generation", map[string]string{
		"drama_name": "Custom Drama",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "custom prompt for Custom Drama", msgs[0].Content)
}

func TestPromptPackCachesAfterFirstLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "short_drama_narration"), 0o755))
	path := filepath.Join(dir, "short_drama_narration", "script_generation.yaml")
	require.NoError(t, os.WriteFile(path, []byte("messages:\n  - role: system\n    content: \"v1\"\n"), 0o644))

	pack := NewPromptPack(dir)
	first, err := pack.BuildChatMessages("short_drama_narration:script_generation", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", first[0].Content)

	require.NoError(t, os.WriteFile(path, []byte("messages:\n  - role: system\n    content: \"v2\"\n"), 0o644))
	second, err := pack.BuildChatMessages("short_drama_narration:script_generation", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", second[0].Content, "a cached template must not be reloaded from disk")
}
