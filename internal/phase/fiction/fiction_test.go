package fiction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/config"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/phase"
)

func testStory() config.StoryConfig {
	return config.StoryConfig{UnitsPerCollection: 5, MinUnitWords: 5, MaxUnitWords: 50}
}

func TestWriterDraft(t *testing.T) {
	mock := agent.NewMockClient().On(OpDraft, "  The lighthouse keeper counted ships until dawn.  ")
	w := NewWriter(mock, phase.NewPrompts(""), testStory(), 3000)

	out, err := w.Draft(context.Background(), DraftRequest{
		Background:    Background{World: "A drowned coast.", Characters: "Mara, keeper."},
		CollectionID:  2,
		UnitIndex:     3,
		Previous:      []string{"Act one text.", "Act two text."},
		PlotDirection: "The storm reveals a wreck.",
	})
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	if out != "The lighthouse keeper counted ships until dawn." {
		t.Errorf("Draft() = %q, want trimmed output", out)
	}

	req := mock.Requests()[0]
	if req.MaxTokens != 3000 {
		t.Errorf("MaxTokens = %d, want 3000", req.MaxTokens)
	}
	for _, want := range []string{"A drowned coast.", "Mara, keeper.", "### Act 1\nAct one text.", "### Act 2\nAct two text.",
		"Write act 3 of 5 in chapter 2.", "Target length: 5-50 words.", "The storm reveals a wreck."} {
		if !strings.Contains(req.User, want) {
			t.Errorf("prompt missing %q:\n%s", want, req.User)
		}
	}
}

func TestWriterFirstActAndShortOutput(t *testing.T) {
	mock := agent.NewMockClient().On(OpDraft, "Too short.")
	w := NewWriter(mock, phase.NewPrompts(""), testStory(), 3000)

	out, err := w.Draft(context.Background(), DraftRequest{CollectionID: 1, UnitIndex: 1})
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	// Degenerate output is still returned.
	if out != "Too short." {
		t.Errorf("Draft() = %q", out)
	}
	if !strings.Contains(mock.Requests()[0].User, "This is the first act of the chapter.") {
		t.Error("first act prompt should say there is no earlier context")
	}
	if strings.Contains(mock.Requests()[0].User, "Plot direction") {
		t.Error("prompt should omit plot direction when none is set")
	}
}

func TestWriterRejectsOutOfRangeIndex(t *testing.T) {
	mock := agent.NewMockClient()
	w := NewWriter(mock, phase.NewPrompts(""), testStory(), 3000)
	for _, idx := range []int{0, 6} {
		if _, err := w.Draft(context.Background(), DraftRequest{CollectionID: 1, UnitIndex: idx}); !core.IsPrecondition(err) {
			t.Errorf("Draft(index %d) error = %v, want precondition", idx, err)
		}
	}
	if mock.Calls("") != 0 {
		t.Error("no model call expected")
	}
}

func TestCriticCritique(t *testing.T) {
	tests := []struct {
		name      string
		level     story.Level
		reply     string
		wantOp    string
		want      story.Verdict
		wantErr   error
		inPrompt  string
		notPrompt string
	}{
		{
			name:   "unit verdict",
			level:  story.LevelUnit,
			reply:  "```json\n{\"score\": 7, \"criteria_scores\": {\"pacing\": 6}, \"weaknesses\": [\"slow middle\"], \"suggestions\": [\"cut the market scene\"]}\n```",
			wantOp: OpCritiqueUnit,
			want: story.Verdict{
				OverallScore:   7,
				CriteriaScores: map[string]int{"pacing": 6},
				Weaknesses:     []string{"slow middle"},
				Suggestions:    []string{"cut the market scene"},
			},
			inPrompt:  "character_consistency",
			notPrompt: "cliffhanger",
		},
		{
			name:      "collection verdict",
			level:     story.LevelCollection,
			reply:     `{"score": 10, "criteria_scores": {"continuity": 10}, "weaknesses": [], "suggestions": []}`,
			wantOp:    OpCritiqueCollection,
			want:      story.Verdict{OverallScore: 10, CriteriaScores: map[string]int{"continuity": 10}, Weaknesses: []string{}, Suggestions: []string{}},
			inPrompt:  "cliffhanger",
			notPrompt: "dialogue",
		},
		{
			name:    "prose instead of JSON",
			level:   story.LevelUnit,
			reply:   "A fine act, I'd say eight.",
			wantOp:  OpCritiqueUnit,
			wantErr: core.ErrMalformedVerdict,
		},
		{
			name:    "low score without weaknesses",
			level:   story.LevelUnit,
			reply:   `{"score": 6}`,
			wantOp:  OpCritiqueUnit,
			wantErr: core.ErrMalformedVerdict,
		},
		{
			name:    "score off scale",
			level:   story.LevelUnit,
			reply:   `{"score": 42, "weaknesses": ["x"]}`,
			wantOp:  OpCritiqueUnit,
			wantErr: core.ErrMalformedVerdict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := agent.NewMockClient().On(tt.wantOp, tt.reply)
			c := NewCritic(mock, phase.NewPrompts(""), 1500)

			got, err := c.Critique(context.Background(), tt.level, "Some content to judge.")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Critique() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Critique() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Critique() mismatch (-want +got):\n%s", diff)
			}
			req := mock.Requests()[0]
			if !req.JSON {
				t.Error("critique must request JSON")
			}
			if !strings.Contains(req.User, tt.inPrompt) || strings.Contains(req.User, tt.notPrompt) {
				t.Errorf("prompt uses wrong rubric:\n%s", req.User)
			}
		})
	}
}

func TestCriticServiceErrorIsNotMalformed(t *testing.T) {
	boom := &core.TransientError{Op: "critique", StatusCode: 503, Err: errors.New("down")}
	mock := agent.NewMockClient().Fail(OpCritiqueUnit, boom)
	_, err := NewCritic(mock, phase.NewPrompts(""), 1500).Critique(context.Background(), story.LevelUnit, "text")
	if core.IsMalformed(err) || !core.IsTransient(err) {
		t.Errorf("error = %v, want transient only", err)
	}
}

func TestRefinerRefine(t *testing.T) {
	t.Run("unit", func(t *testing.T) {
		mock := agent.NewMockClient().On(OpRefineUnit, "Revised act.\n")
		r := NewRefiner(mock, phase.NewPrompts(""), 3000, 8000)

		out, err := r.Refine(context.Background(), story.LevelUnit, "Original act.", []string{"tighten dialogue", "sharpen ending"})
		if err != nil {
			t.Fatal(err)
		}
		if out != "Revised act." {
			t.Errorf("Refine() = %q", out)
		}
		req := mock.Requests()[0]
		if req.MaxTokens != 3000 {
			t.Errorf("MaxTokens = %d, want 3000", req.MaxTokens)
		}
		if !strings.Contains(req.User, "1. tighten dialogue\n2. sharpen ending") {
			t.Errorf("suggestions not numbered in prompt:\n%s", req.User)
		}
		if !strings.Contains(req.System, "90%") {
			t.Error("system prompt should carry the preservation rule")
		}
	})

	t.Run("collection uses chapter budget", func(t *testing.T) {
		mock := agent.NewMockClient().On(OpRefineCollection, "Revised chapter.")
		r := NewRefiner(mock, phase.NewPrompts(""), 3000, 8000)
		if _, err := r.Refine(context.Background(), story.LevelCollection, "Chapter.", []string{"stronger hook"}); err != nil {
			t.Fatal(err)
		}
		req := mock.Requests()[0]
		if req.MaxTokens != 8000 || !strings.Contains(req.System, "act boundaries") {
			t.Errorf("collection refine request = %+v", req)
		}
	})

	t.Run("no suggestions is a caller error", func(t *testing.T) {
		mock := agent.NewMockClient()
		_, err := NewRefiner(mock, phase.NewPrompts(""), 3000, 8000).Refine(context.Background(), story.LevelUnit, "text", nil)
		if !core.IsPrecondition(err) {
			t.Errorf("error = %v, want precondition", err)
		}
		if mock.Calls("") != 0 {
			t.Error("no model call expected")
		}
	})
}

func TestVoterPropose(t *testing.T) {
	mock := agent.NewMockClient().
		On(OpSummarize, "Mara finds the wreck.").
		On(OpVoteOptions, `{"option_a": "She salvages it.", "option_b": "She reports it.", "option_c": "She burns it."}`)

	vote, err := NewVoter(mock, phase.NewPrompts("")).Propose(context.Background(), 3, "Full chapter text.")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	want := story.Vote{CollectionID: 4, Options: [3]string{"She salvages it.", "She reports it.", "She burns it."}}
	if diff := cmp.Diff(want, vote); diff != "" {
		t.Errorf("Propose() mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(mock.Requests()[1].User, "Mara finds the wreck.") {
		t.Error("options prompt should include the summary")
	}
}

func TestVoterKeepsLongChapterValidUTF8(t *testing.T) {
	mock := agent.NewMockClient().
		On(OpSummarize, "Summary.").
		On(OpVoteOptions, `{"option_a": "A", "option_b": "B", "option_c": "C"}`)

	chapter := "x" + strings.Repeat("é", summaryInputLimit)
	if _, err := NewVoter(mock, phase.NewPrompts("")).Propose(context.Background(), 1, chapter); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	user := mock.Requests()[0].User
	if !utf8.ValidString(user) {
		t.Error("summary prompt is not valid UTF-8")
	}
	if got := strings.Count(user, "é"); got != summaryInputLimit-1 {
		t.Errorf("summary prompt kept %d accented runes, want %d", got, summaryInputLimit-1)
	}
}

func TestVoterRejectsEmptyOption(t *testing.T) {
	mock := agent.NewMockClient().
		On(OpSummarize, "Summary.").
		On(OpVoteOptions, `{"option_a": "A", "option_b": "", "option_c": "C"}`)
	_, err := NewVoter(mock, phase.NewPrompts("")).Propose(context.Background(), 1, "text")
	if !errors.Is(err, agent.ErrMalformedResponse) {
		t.Errorf("error = %v, want malformed", err)
	}
}

func TestLoadBackground(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := LoadBackground(dir); !errors.Is(err, core.ErrMissingInput) {
		t.Fatalf("empty dir error = %v, want ErrMissingInput", err)
	}

	write(WorldFile, "\nA drowned coast.\n")
	write(CharactersFile, "   ")
	if _, err := LoadBackground(dir); !errors.Is(err, core.ErrMissingInput) {
		t.Fatalf("blank characters error = %v, want ErrMissingInput", err)
	}

	write(CharactersFile, "Mara")
	bg, err := LoadBackground(dir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Background{World: "A drowned coast.", Characters: "Mara"}, bg); diff != "" {
		t.Errorf("LoadBackground() mismatch (-want +got):\n%s", diff)
	}
}

func TestRubricFor(t *testing.T) {
	if got := RubricFor(story.LevelUnit).Keys(); len(got) != 5 || got[0] != "narrative_quality" {
		t.Errorf("unit rubric keys = %v", got)
	}
	if got := RubricFor(story.LevelCollection).Keys(); len(got) != 4 || got[3] != "cliffhanger" {
		t.Errorf("collection rubric keys = %v", got)
	}
}
