// Package conf provides NarrationForge's layered configuration: defaults,
// an optional YAML file, and environment variable overrides, built on
// spf13/viper the way the teacher's internal/conf package is, plus the
// scope concurrency recommendation heuristic.
package conf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

// Settings is the resolved configuration snapshot.
type Settings struct {
	UploadsRoot      string
	PromptPackDir    string
	ProviderTimeout  int // seconds
	Concurrency      ConcurrencyConfig
}

// ConcurrencyConfig holds the per-scope override settings, mirroring
// generate_concurrency_config.py's GenerateConcurrencyConfig.
type ConcurrencyConfig struct {
	GenerateVideo  ScopeConcurrency
	GenerateDraft  ScopeConcurrency
	TTS            ScopeConcurrency
	GenerateScript ScopeConcurrency
}

// ScopeConcurrency is one scope's user-configurable worker count.
type ScopeConcurrency struct {
	MaxWorkers int
	Override   bool
}

// setDefaults mirrors the teacher's conf/defaults.go viper.SetDefault
// cascade, adapted to this domain's settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("uploads_root", "uploads")
	v.SetDefault("prompt_pack_dir", "prompts")
	v.SetDefault("provider_timeout_seconds", 600)

	v.SetDefault("concurrency.generate_video.max_workers", 2)
	v.SetDefault("concurrency.generate_video.override", false)
	v.SetDefault("concurrency.generate_jianying_draft.max_workers", 4)
	v.SetDefault("concurrency.generate_jianying_draft.override", false)
	v.SetDefault("concurrency.tts.max_workers", 4)
	v.SetDefault("concurrency.tts.override", false)
	v.SetDefault("concurrency.generate_script.max_workers", 2)
	v.SetDefault("concurrency.generate_script.override", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.file_output.path", "logs/narrationforge.log")
	v.SetDefault("logging.file_output.rotation", "daily")
}

// Load builds the layered configuration: defaults, then an optional YAML
// file at path (skipped if empty or missing), then environment variables
// prefixed NARRATIONFORGE_.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("narrationforge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("conf: read config file %s: %w", path, err)
			}
		}
	}

	return &Settings{
		UploadsRoot:     v.GetString("uploads_root"),
		PromptPackDir:   v.GetString("prompt_pack_dir"),
		ProviderTimeout: v.GetInt("provider_timeout_seconds"),
		Concurrency: ConcurrencyConfig{
			GenerateVideo: ScopeConcurrency{
				MaxWorkers: v.GetInt("concurrency.generate_video.max_workers"),
				Override:   v.GetBool("concurrency.generate_video.override"),
			},
			GenerateDraft: ScopeConcurrency{
				MaxWorkers: v.GetInt("concurrency.generate_jianying_draft.max_workers"),
				Override:   v.GetBool("concurrency.generate_jianying_draft.override"),
			},
			TTS: ScopeConcurrency{
				MaxWorkers: v.GetInt("concurrency.tts.max_workers"),
				Override:   v.GetBool("concurrency.tts.override"),
			},
			GenerateScript: ScopeConcurrency{
				MaxWorkers: v.GetInt("concurrency.generate_script.max_workers"),
				Override:   v.GetBool("concurrency.generate_script.override"),
			},
		},
	}, nil
}

// scopeConcurrency returns the user-configured setting for scope, if any.
func (c ConcurrencyConfig) scopeConcurrency(scope model.Scope) (ScopeConcurrency, bool) {
	switch scope {
	case model.ScopeGenerateVideo:
		return c.GenerateVideo, true
	case model.ScopeGenerateDraft:
		return c.GenerateDraft, true
	case model.ScopeTTS:
		return c.TTS, true
	case model.ScopeGenerateScript:
		return c.GenerateScript, true
	default:
		return ScopeConcurrency{}, false
	}
}

// EnvVarFor returns the environment variable name checked for scope,
// mirroring generate_concurrency_config.py's SACV_*_MAX_WORKERS names.
func EnvVarFor(scope model.Scope) string {
	switch scope {
	case model.ScopeGenerateVideo:
		return "NARRATIONFORGE_GENERATE_VIDEO_MAX_WORKERS"
	case model.ScopeGenerateDraft:
		return "NARRATIONFORGE_JY_DRAFT_MAX_WORKERS"
	case model.ScopeTTS:
		return "NARRATIONFORGE_TTS_MAX_WORKERS"
	case model.ScopeGenerateScript:
		return "NARRATIONFORGE_GENERATE_SCRIPT_MAX_WORKERS"
	default:
		return ""
	}
}

// Source names where an effective concurrency value came from.
type Source string

const (
	SourceUser        Source = "user"
	SourceEnv         Source = "env"
	SourceRecommended Source = "recommended"
)
