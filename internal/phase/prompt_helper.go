// Package phase holds helpers shared by the stage implementations.
package phase

import (
	"path/filepath"

	"github.com/dotcommander/vbook/internal/agent"
)

// Prompts renders stage prompts from built-in templates, letting an operator
// override any of them by dropping <name>.txt into a prompt directory.
type Prompts struct {
	cache *agent.PromptCache
	dir   string
}

// NewPrompts returns a renderer. An empty dir disables overrides.
func NewPrompts(dir string) *Prompts {
	return &Prompts{cache: agent.NewPromptCache(), dir: dir}
}

// Render executes template name, falling back to the built-in text.
func (p *Prompts) Render(name, builtin string, data any) (string, error) {
	override := ""
	if p.dir != "" {
		override = filepath.Join(p.dir, name+".txt")
	}
	return p.cache.Execute(name, override, builtin, data)
}
