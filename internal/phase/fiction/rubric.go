package fiction

import "github.com/dotcommander/vbook/internal/domain/story"

// Criterion is one named axis of a rubric.
type Criterion struct {
	Key         string
	Description string
}

// Rubric is the fixed, ordered set of criteria for one review level.
type Rubric struct {
	Level    story.Level
	Subject  string
	Criteria []Criterion
}

var unitRubric = Rubric{
	Level:   story.LevelUnit,
	Subject: "act",
	Criteria: []Criterion{
		{"narrative_quality", "prose, imagery and flow"},
		{"pacing", "scene rhythm, tension and beats"},
		{"character_consistency", "voices and motivations match the established profiles"},
		{"dialogue", "natural, character-specific and purposeful"},
		{"engagement", "hooks the reader and earns its length"},
	},
}

var collectionRubric = Rubric{
	Level:   story.LevelCollection,
	Subject: "chapter",
	Criteria: []Criterion{
		{"continuity", "acts flow into each other without contradiction or jarring gaps"},
		{"chapter_arc", "clear beginning, rising tension and a meaningful end"},
		{"pacing", "the chapter as a whole moves at the right speed"},
		{"cliffhanger", "the ending hooks strongly into the next chapter"},
	},
}

// RubricFor returns the rubric used at level.
func RubricFor(level story.Level) Rubric {
	if level == story.LevelCollection {
		return collectionRubric
	}
	return unitRubric
}

// Keys lists criterion keys in rubric order.
func (r Rubric) Keys() []string {
	keys := make([]string, len(r.Criteria))
	for i, c := range r.Criteria {
		keys[i] = c.Key
	}
	return keys
}
