package fiction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/phase"
)

// Refiner applies a verdict's suggestions to content. It satisfies
// core.Refiner. The preservation rules are instructions to the model; the
// controller's retention check is the only mechanical gate.
type Refiner struct {
	client           agent.AIClient
	prompts          *phase.Prompts
	unitTokens       int
	collectionTokens int
	logger           *slog.Logger
}

func NewRefiner(client agent.AIClient, prompts *phase.Prompts, unitTokens, collectionTokens int) *Refiner {
	return &Refiner{
		client:           client,
		prompts:          prompts,
		unitTokens:       unitTokens,
		collectionTokens: collectionTokens,
		logger:           slog.Default().With("component", "refiner"),
	}
}

// Refine returns revised content. Calling it without suggestions is a
// caller error.
func (r *Refiner) Refine(ctx context.Context, level story.Level, content string, suggestions []string) (string, error) {
	if len(suggestions) == 0 {
		return "", core.NewPreconditionError("refine", "no suggestions to apply")
	}
	if strings.TrimSpace(content) == "" {
		return "", core.NewPreconditionError("refine", "empty %s content", level)
	}

	rubric := RubricFor(level)
	data := struct {
		Subject     string
		Content     string
		Suggestions []string
	}{rubric.Subject, content, suggestions}

	system, err := r.prompts.Render("refiner_system", refinerSystem, data)
	if err != nil {
		return "", err
	}
	user, err := r.prompts.Render("refiner", refinerUser, data)
	if err != nil {
		return "", err
	}

	op, tokens := OpRefineUnit, r.unitTokens
	if level == story.LevelCollection {
		op, tokens = OpRefineCollection, r.collectionTokens
	}

	out, err := r.client.Generate(ctx, agent.Request{
		Operation: op,
		System:    system,
		User:      user,
		MaxTokens: tokens,
	})
	if err != nil {
		return "", fmt.Errorf("refining %s: %w", rubric.Subject, err)
	}
	out = strings.TrimSpace(out)

	r.logger.Debug("refined",
		"level", level,
		"suggestions", len(suggestions),
		"words_before", core.WordCount(content),
		"words_after", core.WordCount(out))

	return out, nil
}
