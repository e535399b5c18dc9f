package scene

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/phase"
)

// actExcerptLimit caps the act text sent for extraction.
const actExcerptLimit = 8000

// Extractor asks the model to describe scene k of N within an act.
type Extractor struct {
	client        agent.AIClient
	prompts       *phase.Prompts
	characters    string
	scenesPerUnit int
	maxTokens     int
}

// NewExtractor builds the extract stage. characters is the fixed character
// sheet injected into every request; it may be empty.
func NewExtractor(client agent.AIClient, prompts *phase.Prompts, characters string, scenesPerUnit, maxTokens int) *Extractor {
	return &Extractor{
		client:        client,
		prompts:       prompts,
		characters:    strings.TrimSpace(characters),
		scenesPerUnit: scenesPerUnit,
		maxTokens:     maxTokens,
	}
}

func (e *Extractor) Name() string  { return StageExtract }
func (e *Extractor) Field() string { return story.FieldExtractedDescription }

func (e *Extractor) Produce(ctx context.Context, item story.Item, parent story.Unit) (string, error) {
	content := strings.TrimSpace(parent.Content)
	if content == "" {
		return "", fmt.Errorf("%w: %s has no text", core.ErrMissingInput, parent.Label())
	}
	content = core.Truncate(content, actExcerptLimit)

	user, err := e.prompts.Render("scene_extract", extractUser, struct {
		Characters   string
		CollectionID int
		UnitIndex    int
		ItemIndex    int
		Total        int
		Content      string
	}{e.characters, item.CollectionID, item.UnitIndex, item.ItemIndex, e.scenesPerUnit, content})
	if err != nil {
		return "", err
	}

	var d Description
	if err := agent.GenerateStructured(ctx, e.client, agent.Request{
		Operation: OpExtractScene,
		System:    extractSystem,
		User:      user,
		MaxTokens: e.maxTokens,
	}, &d); err != nil {
		return "", fmt.Errorf("extracting %s: %w", item.ID(), err)
	}
	if err := d.validate(); err != nil {
		return "", fmt.Errorf("extracting %s: %w", item.ID(), err)
	}
	d.SceneNumber = item.ItemIndex

	return d.Encode()
}
