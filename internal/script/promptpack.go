package script

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/logging"
)

var packLogger = logging.ForService("script")

// promptTemplate is one named chat-message template, loaded from a
// "category.yaml" file under a project's prompt pack directory. Mirrors
// the role/content shape prompt_manager.build_chat_messages ultimately
// produces, minus the Python original's generic cross-feature template
// registry — NarrationForge only ever resolves script-generation prompts,
// so the pack format is narrowed to that single use.
type promptTemplate struct {
	Messages []promptPackMessage `yaml:"messages"`
}

type promptPackMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// PromptPack resolves a "category:template" key to a chat message list,
// substituting {{variable}} placeholders. It loads templates lazily from
// disk the first time a key is requested and caches them, falling back to
// builtinMessages when no pack file exists for the category — mirroring
// script_builder.py's fallback-to-register_prompts()-then-default_key
// behavior when a custom key can't be resolved.
type PromptPack struct {
	dir   string
	cache map[string][]promptPackMessage
}

// NewPromptPack creates a PromptPack rooted at dir (conf.Settings.PromptPackDir).
// An empty dir disables on-disk loading; every key then falls back to the
// built-in templates.
func NewPromptPack(dir string) *PromptPack {
	return &PromptPack{dir: dir, cache: make(map[string][]promptPackMessage)}
}

// BuildChatMessages resolves key into a rendered message list, substituting
// variables, mirroring prompt_manager.build_chat_messages.
func (p *PromptPack) BuildChatMessages(key string, variables map[string]string) ([]renderedMessage, error) {
	templates, err := p.load(key)
	if err != nil {
		return nil, err
	}
	out := make([]renderedMessage, 0, len(templates))
	for _, t := range templates {
		out = append(out, renderedMessage{Role: t.Role, Content: substituteVariables(t.Content, variables)})
	}
	return out, nil
}

type renderedMessage struct {
	Role    string
	Content string
}

func (p *PromptPack) load(key string) ([]promptPackMessage, error) {
	if cached, ok := p.cache[key]; ok {
		return cached, nil
	}

	category, name := splitKey(key)
	if p.dir != "" {
		path := filepath.Join(p.dir, category, name+".yaml")
		if data, err := os.ReadFile(path); err == nil {
			var tmpl promptTemplate
			if err := yaml.Unmarshal(data, &tmpl); err != nil {
				return nil, errs.New(err).Component("script.promptpack").Category(errs.CategoryValidation).
					Context("path", path).Build()
			}
			p.cache[key] = tmpl.Messages
			return tmpl.Messages, nil
		}
	}

	builtin := builtinMessages(category, strings.HasSuffix(name, englishSuffix))
	p.cache[key] = builtin
	packLogger.Debug("using built-in prompt template, no pack file found", "key", key)
	return builtin, nil
}

func splitKey(key string) (category, name string) {
	if idx := strings.Index(key, ":"); idx >= 0 {
		return key[:idx], key[idx+1:]
	}
	return CategoryShortDrama, key
}

func substituteVariables(content string, variables map[string]string) string {
	for k, v := range variables {
		content = strings.ReplaceAll(content, "{{"+k+"}}", v)
	}
	return content
}

// builtinMessages is the fallback template used when no on-disk prompt
// pack file exists for a category, mirroring the register_prompts()
// built-in registration fallback in script_builder.py.
func builtinMessages(category string, english bool) []promptPackMessage {
	subject := "短剧解说"
	if category == CategoryMovie {
		subject = "电影解说"
	}
	lang := "中文"
	if english {
		lang = "English"
	}
	return []promptPackMessage{
		{
			Role: "system",
			Content: "你是一位专业的" + subject + "脚本撰写助手，语言：" + lang + "。剧名：{{drama_name}}。" +
				"剧情梗概：{{plot_analysis}}",
		},
		{
			Role:    "user",
			Content: "以下是本段字幕内容，请据此生成解说脚本：\n{{subtitle_content}}",
		},
	}
}
