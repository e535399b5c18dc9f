package fiction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/config"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/phase"
)

// Operation labels used for logging, metrics and test scripting.
const (
	OpDraft              = "draft"
	OpCritiqueUnit       = "critique_unit"
	OpCritiqueCollection = "critique_collection"
	OpRefineUnit         = "refine_unit"
	OpRefineCollection   = "refine_collection"
	OpSummarize          = "summarize"
	OpVoteOptions        = "vote_options"
)

// DraftRequest is everything the writer may see. Previous holds only the
// approved units of the same collection, in unit order.
type DraftRequest struct {
	Background    Background
	CollectionID  int
	UnitIndex     int
	Previous      []string
	PlotDirection string
}

// Writer produces the first draft of a unit. It never retries and never
// persists; both belong to the caller.
type Writer struct {
	client    agent.AIClient
	prompts   *phase.Prompts
	story     config.StoryConfig
	maxTokens int
	logger    *slog.Logger
}

func NewWriter(client agent.AIClient, prompts *phase.Prompts, story config.StoryConfig, maxTokens int) *Writer {
	return &Writer{
		client:    client,
		prompts:   prompts,
		story:     story,
		maxTokens: maxTokens,
		logger:    slog.Default().With("component", "writer"),
	}
}

// Draft returns new unit content. Output shorter than the minimum word
// count is logged and returned as is.
func (w *Writer) Draft(ctx context.Context, req DraftRequest) (string, error) {
	if req.UnitIndex < 1 || req.UnitIndex > w.story.UnitsPerCollection {
		return "", core.NewPreconditionError("draft", "unit index %d outside 1-%d", req.UnitIndex, w.story.UnitsPerCollection)
	}

	data := struct {
		DraftRequest
		World              string
		Characters         string
		UnitsPerCollection int
		MinWords           int
		MaxWords           int
	}{
		DraftRequest:       req,
		World:              req.Background.World,
		Characters:         req.Background.Characters,
		UnitsPerCollection: w.story.UnitsPerCollection,
		MinWords:           w.story.MinUnitWords,
		MaxWords:           w.story.MaxUnitWords,
	}

	system, err := w.prompts.Render("writer_system", writerSystem, data)
	if err != nil {
		return "", err
	}
	user, err := w.prompts.Render("writer", writerUser, data)
	if err != nil {
		return "", err
	}

	text, err := w.client.Generate(ctx, agent.Request{
		Operation: OpDraft,
		System:    system,
		User:      user,
		MaxTokens: w.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("drafting chapter %d act %d: %w", req.CollectionID, req.UnitIndex, err)
	}
	text = strings.TrimSpace(text)

	words := core.WordCount(text)
	if words < w.story.MinUnitWords {
		w.logger.Warn("draft shorter than target",
			"chapter", req.CollectionID,
			"act", req.UnitIndex,
			"words", words,
			"min_words", w.story.MinUnitWords)
	} else {
		w.logger.Info("drafted",
			"chapter", req.CollectionID,
			"act", req.UnitIndex,
			"words", words,
			"context_acts", len(req.Previous))
	}

	return text, nil
}
