package scene

import (
	"context"
	"strings"

	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
)

// PromptWriter turns an extracted description into a render prompt. It is
// deterministic and makes no external calls.
type PromptWriter struct {
	style string
}

func NewPromptWriter(style string) *PromptWriter {
	return &PromptWriter{style: strings.TrimSpace(style)}
}

func (p *PromptWriter) Name() string  { return StagePrompt }
func (p *PromptWriter) Field() string { return story.FieldRenderedPrompt }

func (p *PromptWriter) Produce(ctx context.Context, item story.Item, parent story.Unit) (string, error) {
	d, err := ParseDescription(item)
	if err != nil {
		return "", err
	}
	return BuildPrompt(p.style, d), nil
}

// BuildPrompt assembles the render prompt, capped at MaxPromptChars.
func BuildPrompt(style string, d Description) string {
	var parts []string
	add := func(s string) {
		s = strings.TrimRight(strings.TrimSpace(s), ".")
		if s != "" {
			parts = append(parts, s+".")
		}
	}

	add(style)
	add(d.SceneDescription)
	if d.Setting != "" {
		add("Setting: " + d.Setting)
	}
	if d.Mood != "" {
		add("Mood: " + d.Mood)
	}
	add(d.Action)
	if d.CameraAngle != "" {
		add(d.CameraAngle + " shot")
	}
	if len(d.CharactersPresent) > 0 {
		add("Characters present: " + strings.Join(d.CharactersPresent, ", "))
	}

	return core.Truncate(strings.Join(parts, " "), MaxPromptChars)
}
