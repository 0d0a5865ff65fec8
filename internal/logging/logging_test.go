package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitCreatesLogDirAndFile(t *testing.T) {
	dir := t.TempDir()
	err := Init(Options{Dir: dir, FileName: "test.log", Level: slog.LevelInfo, Rotation: RotationDaily})
	require.NoError(t, err)

	logger := ForService("unit-test")
	logger.Info("hello", "key", "value")

	_, statErr := os.Stat(filepath.Join(dir, "test.log"))
	require.NoError(t, statErr)
}

func TestSetLevelAffectsFiltering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(Options{Dir: dir, FileName: "test.log", Level: slog.LevelInfo}))

	SetLevel(slog.LevelError)
	require.False(t, Structured().Enabled(nil, slog.LevelInfo))
	require.True(t, Structured().Enabled(nil, slog.LevelError))

	SetLevel(slog.LevelInfo)
}

func TestForServiceAttachesComponentField(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(Options{Dir: dir, FileName: "test.log", Level: slog.LevelDebug}))

	logger := ForService("pipeline")
	require.NotNil(t, logger)
	logger.Info("hello")

	raw, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"service":"pipeline"`)
}
