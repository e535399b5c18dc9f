package agent

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"text/template"
)

// promptFuncs are available to every prompt template.
var promptFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// PromptCache caches parsed prompt templates to avoid repeated file reads.
// Templates are keyed by name; an override file replaces the built-in text
// for that name.
type PromptCache struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	raw       map[string]string
}

// NewPromptCache creates a new prompt cache
func NewPromptCache() *PromptCache {
	return &PromptCache{
		templates: make(map[string]*template.Template),
		raw:       make(map[string]string),
	}
}

// LoadPrompt loads a prompt from file or cache
func (pc *PromptCache) LoadPrompt(path string) (string, error) {
	pc.mu.RLock()
	if content, ok := pc.raw[path]; ok {
		pc.mu.RUnlock()
		return content, nil
	}
	pc.mu.RUnlock()

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}

	pc.mu.Lock()
	pc.raw[path] = string(content)
	pc.mu.Unlock()

	return string(content), nil
}

// Template returns the parsed template for name. If overridePath names an
// existing file its contents are used; otherwise fallback is parsed.
func (pc *PromptCache) Template(name, overridePath, fallback string) (*template.Template, error) {
	pc.mu.RLock()
	if tmpl, ok := pc.templates[name]; ok {
		pc.mu.RUnlock()
		return tmpl, nil
	}
	pc.mu.RUnlock()

	text := fallback
	if overridePath != "" {
		content, err := pc.LoadPrompt(overridePath)
		switch {
		case err == nil:
			text = content
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}

	pc.mu.Lock()
	pc.templates[name] = tmpl
	pc.mu.Unlock()

	return tmpl, nil
}

// Execute renders the named template with data.
func (pc *PromptCache) Execute(name, overridePath, fallback string, data any) (string, error) {
	tmpl, err := pc.Template(name, overridePath, fallback)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Clear removes all cached prompts and templates
func (pc *PromptCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.templates = make(map[string]*template.Template)
	pc.raw = make(map[string]string)
}

// Stats returns cache statistics
func (pc *PromptCache) Stats() (templates int, raw int) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return len(pc.templates), len(pc.raw)
}
