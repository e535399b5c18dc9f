// Package story holds the data shapes shared by every stage of the pipeline:
// leaf units (acts), collections of units (chapters), critique verdicts and
// the per-scene artifact items.
package story

import (
	"fmt"
	"strings"
	"time"
)

// Status is the persisted lifecycle state of a unit or collection.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusApproved         Status = "approved"
	StatusNeedsHumanReview Status = "needs_human_review"
)

// Terminal reports whether no further automated work may be done.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusNeedsHumanReview
}

func (s Status) String() string { return string(s) }

// Level distinguishes unit-level review from collection-level review. Each
// level has its own rubric and its own threshold/budget.
type Level string

const (
	LevelUnit       Level = "unit"
	LevelCollection Level = "collection"
)

// Work is the refinable state shared by units and collection rollups. The
// convergence controller only ever sees a *Work.
type Work struct {
	Content        string
	Score          int
	Scored         bool
	Iterations     int
	Status         Status
	CriteriaScores map[string]int
	// Weaknesses from the most recent verdict, surfaced on escalation.
	Weaknesses []string
	LastError  string
	UpdatedAt  time.Time
}

// NewWork returns a fresh draft.
func NewWork(content string) Work {
	return Work{Content: content, Status: StatusDraft}
}

// Apply records a verdict on the work without changing its status.
func (w *Work) Apply(v Verdict) {
	w.Score = v.OverallScore
	w.Scored = true
	w.Weaknesses = append([]string(nil), v.Weaknesses...)
	w.CriteriaScores = make(map[string]int, len(v.CriteriaScores))
	for k, s := range v.CriteriaScores {
		w.CriteriaScores[k] = s
	}
}

// Unit is the atomic piece of generated content, e.g. an act.
type Unit struct {
	CollectionID int
	UnitIndex    int
	Work
	ArtifactRef string
}

// Label renders the unit key for logs and reports.
func (u Unit) Label() string {
	return fmt.Sprintf("chapter %d act %d", u.CollectionID, u.UnitIndex)
}

// Collection is an ordered group of units plus its aggregated record.
type Collection struct {
	ID    int
	Units []Unit
	// Combined holds combined_content with the collection score/status.
	Combined    Work
	Aggregated  bool
	ArtifactRef string
}

// UnitSeparator joins unit contents into combined content.
const UnitSeparator = "\n\n"

// Ready reports whether every unit is terminal, which is the precondition for
// aggregation. An empty collection is never ready.
func (c Collection) Ready() bool {
	if len(c.Units) == 0 {
		return false
	}
	for _, u := range c.Units {
		if !u.Status.Terminal() {
			return false
		}
	}
	return true
}

// Pending lists the units that are not yet terminal.
func (c Collection) Pending() []int {
	var out []int
	for _, u := range c.Units {
		if !u.Status.Terminal() {
			out = append(out, u.UnitIndex)
		}
	}
	return out
}

// Combine concatenates unit contents in unit_index order. Units must already
// be sorted.
func (c Collection) Combine() string {
	parts := make([]string, 0, len(c.Units))
	for _, u := range c.Units {
		parts = append(parts, strings.TrimSpace(u.Content))
	}
	return strings.Join(parts, UnitSeparator)
}

// Verdict is the structured output of one critique call. It is never mutated
// after construction.
type Verdict struct {
	OverallScore   int            `json:"score"`
	CriteriaScores map[string]int `json:"criteria_scores"`
	Weaknesses     []string       `json:"weaknesses"`
	Suggestions    []string       `json:"suggestions"`
}

// Score scale bounds.
const (
	MinScore = 1
	MaxScore = 10
)

// Validate checks the verdict shape: score on scale, and at least one
// weakness whenever the score is below the maximum.
func (v Verdict) Validate() error {
	if v.OverallScore < MinScore || v.OverallScore > MaxScore {
		return fmt.Errorf("score %d outside %d-%d", v.OverallScore, MinScore, MaxScore)
	}
	if v.OverallScore < MaxScore && len(v.Weaknesses) == 0 {
		return fmt.Errorf("score %d below %d but no weaknesses listed", v.OverallScore, MaxScore)
	}
	for name, s := range v.CriteriaScores {
		if s < MinScore || s > MaxScore {
			return fmt.Errorf("criterion %q score %d outside %d-%d", name, s, MinScore, MaxScore)
		}
	}
	return nil
}
