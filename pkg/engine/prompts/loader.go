// Package prompts loads the per-mode system prompts. Defaults are
// embedded in the binary; a project can override any prompt by placing
// <name>.md under <projectRoot>/prompts/.
package prompts

import (
	"embed"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"Bindr/pkg/engine/api"
)

//go:embed *.md
var embeddedPrompts embed.FS

// Loader resolves prompt names to content, caching after first read.
type Loader struct {
	projectRoot string
	cache       map[string]string
	mu          sync.RWMutex
}

// NewLoader creates a loader. With a non-empty projectRoot, prompts in
// <projectRoot>/prompts/ shadow the embedded defaults.
func NewLoader(projectRoot string) *Loader {
	return &Loader{
		projectRoot: projectRoot,
		cache:       make(map[string]string),
	}
}

// ForMode returns the system prompt for a workflow mode.
func (l *Loader) ForMode(mode api.Mode) string {
	return l.Get(string(mode))
}

// Get returns the content of a prompt by name, or "" if it does not
// exist in either the project override directory or the embedded set.
func (l *Loader) Get(name string) string {
	l.mu.RLock()
	if cached, ok := l.cache[name]; ok {
		l.mu.RUnlock()
		return cached
	}
	l.mu.RUnlock()

	content := l.load(name)

	l.mu.Lock()
	l.cache[name] = content
	l.mu.Unlock()

	return content
}

func (l *Loader) load(name string) string {
	filename := name + ".md"

	if l.projectRoot != "" {
		customPath := filepath.Join(l.projectRoot, "prompts", filename)
		if content, err := os.ReadFile(customPath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	if content, err := embeddedPrompts.ReadFile(filename); err == nil {
		return strings.TrimSpace(string(content))
	}

	return ""
}

// ClearCache forces prompts to be re-read on next access.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]string)
	l.mu.Unlock()
}

// DefaultLoader uses embedded prompts only.
var DefaultLoader = NewLoader("")
