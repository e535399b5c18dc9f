// Package scene implements the per-scene artifact stages: extract a scene
// description from an act, turn it into a render prompt, render the image.
// Each stage fills exactly one completion field on a story.Item.
package scene

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
)

// Stage names, used in logs and metrics.
const (
	StageExtract = "extract"
	StagePrompt  = "prompt"
	StageRender  = "render"

	OpExtractScene = "extract_scene"
)

// MaxPromptChars is the longest prompt the renderer accepts.
const MaxPromptChars = 900

// Description is the structured scene stored in extracted_description.
type Description struct {
	SceneNumber       int      `json:"scene_number"`
	SceneDescription  string   `json:"scene_description"`
	CharactersPresent []string `json:"characters_present"`
	Setting           string   `json:"setting"`
	Mood              string   `json:"mood"`
	Action            string   `json:"action"`
	CameraAngle       string   `json:"camera_angle"`
}

func (d Description) validate() error {
	if strings.TrimSpace(d.SceneDescription) == "" {
		return fmt.Errorf("%w: scene has no description", agent.ErrMalformedResponse)
	}
	return nil
}

// Encode renders d as the stored field value.
func (d Description) Encode() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding scene: %w", err)
	}
	return string(raw), nil
}

// ParseDescription reads the extracted_description field of item.
func ParseDescription(item story.Item) (Description, error) {
	raw := item.Get(story.FieldExtractedDescription)
	if raw == "" {
		return Description{}, fmt.Errorf("%w: %s has no extracted description", core.ErrMissingInput, item.ID())
	}
	var d Description
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Description{}, fmt.Errorf("decoding scene %s: %w", item.ID(), err)
	}
	return d, nil
}
