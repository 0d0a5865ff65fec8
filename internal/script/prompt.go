package script

import (
	"strings"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

// Narration categories, mirroring prompt_resolver.py's category strings.
const (
	CategoryShortDrama = "short_drama_narration"
	CategoryMovie      = "movie_narration"

	baseTemplateName = "script_generation"
	englishSuffix    = "_en"
)

// DefaultPromptKey returns the default "category:template" key for a
// project's narration type, mirroring
// prompt_resolver.py's _default_prompt_key_for_project.
func DefaultPromptKey(narrationType string) string {
	category := CategoryShortDrama
	if narrationType == "电影解说" {
		category = CategoryMovie
	}
	return category + ":" + baseTemplateName
}

// ResolvePromptKey resolves a project's prompt selection for defaultKey
// into the actual template key to use: the project's chosen official
// template id, or the template name portion of a user-authored selection,
// or defaultKey itself if no selection applies. Mirrors
// prompt_resolver.py's _resolve_prompt_key.
func ResolvePromptKey(selection map[string]model.PromptRef, defaultKey string) string {
	sel, ok := selection[defaultKey]
	if !ok {
		return defaultKey
	}
	switch strings.ToLower(sel.Type) {
	case "user":
		if sel.Key == "" {
			return defaultKey
		}
		if idx := strings.Index(sel.Key, ":"); idx >= 0 {
			return sel.Key[idx+1:]
		}
		return sel.Key
	case "official":
		if sel.Key == "" {
			return defaultKey
		}
		return sel.Key
	default:
		return defaultKey
	}
}

// WithLanguageVariant swaps a "category:script_generation" key to its
// English-language sibling when language is English and that sibling
// exists in availableKeys, mirroring the language-aware key substitution
// in script_builder.py's _generate_script_chunk.
func WithLanguageVariant(key, language string, availableKeys map[string]bool) string {
	if !isEnglish(language) {
		return key
	}
	idx := strings.Index(key, ":")
	if idx < 0 {
		return key
	}
	cat, name := key[:idx], key[idx+1:]
	if strings.HasSuffix(name, englishSuffix) {
		return key
	}
	candidate := cat + ":" + name + englishSuffix
	if availableKeys == nil || availableKeys[candidate] {
		return candidate
	}
	return key
}

func isEnglish(language string) bool {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "en", "en-us", "english", "英文":
		return true
	default:
		return false
	}
}

func isChinese(language string) bool {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "zh", "zh-cn", "chinese", "中文":
		return true
	default:
		return false
	}
}
