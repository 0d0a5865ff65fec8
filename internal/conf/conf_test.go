package conf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

func TestLoadAppliesDefaultsWithoutFile(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "uploads", s.UploadsRoot)
	assert.Equal(t, 2, s.Concurrency.GenerateVideo.MaxWorkers)
	assert.Equal(t, 4, s.Concurrency.TTS.MaxWorkers)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
}

func TestEffectiveConcurrencyUserOverrideWins(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	s.Concurrency.GenerateVideo = ScopeConcurrency{MaxWorkers: 7, Override: true}

	v, src := s.EffectiveConcurrency(model.ScopeGenerateVideo)
	assert.Equal(t, 7, v)
	assert.Equal(t, SourceUser, src)
}

func TestEffectiveConcurrencyEnvVarWins(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	t.Setenv("NARRATIONFORGE_TTS_MAX_WORKERS", "9")
	v, src := s.EffectiveConcurrency(model.ScopeTTS)
	assert.Equal(t, 9, v)
	assert.Equal(t, SourceEnv, src)
}

func TestEffectiveConcurrencyFallsBackToRecommended(t *testing.T) {
	os.Unsetenv("NARRATIONFORGE_JY_DRAFT_MAX_WORKERS")
	s, err := Load("")
	require.NoError(t, err)

	v, src := s.EffectiveConcurrency(model.ScopeGenerateDraft)
	assert.GreaterOrEqual(t, v, 1)
	assert.Equal(t, SourceRecommended, src)
}

func TestRecommendConcurrencyNeverBelowOne(t *testing.T) {
	for _, scope := range []model.Scope{model.ScopeGenerateVideo, model.ScopeGenerateDraft, model.ScopeTTS} {
		assert.GreaterOrEqual(t, RecommendConcurrency(scope), 1)
	}
}

func TestRecommendConcurrencyUnknownScopeReturnsOne(t *testing.T) {
	assert.Equal(t, 1, RecommendConcurrency(model.Scope("unknown")))
}
