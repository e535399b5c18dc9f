package fiction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/phase"
)

// Critic scores content against the rubric of its level. It satisfies
// core.Critic.
type Critic struct {
	client    agent.AIClient
	prompts   *phase.Prompts
	maxTokens int
	logger    *slog.Logger
}

func NewCritic(client agent.AIClient, prompts *phase.Prompts, maxTokens int) *Critic {
	return &Critic{
		client:    client,
		prompts:   prompts,
		maxTokens: maxTokens,
		logger:    slog.Default().With("component", "critic"),
	}
}

// Critique returns a fresh verdict. Output that cannot be decoded, or that
// violates the verdict shape, is reported as core.ErrMalformedVerdict.
func (c *Critic) Critique(ctx context.Context, level story.Level, content string) (story.Verdict, error) {
	if strings.TrimSpace(content) == "" {
		return story.Verdict{}, core.NewPreconditionError("critique", "empty %s content", level)
	}

	rubric := RubricFor(level)
	data := struct {
		Rubric
		Content string
	}{rubric, content}

	system, err := c.prompts.Render("critic_system", criticSystem, data)
	if err != nil {
		return story.Verdict{}, err
	}
	user, err := c.prompts.Render("critic_"+string(level), criticUser, data)
	if err != nil {
		return story.Verdict{}, err
	}

	op := OpCritiqueUnit
	if level == story.LevelCollection {
		op = OpCritiqueCollection
	}

	var verdict story.Verdict
	err = agent.GenerateStructured(ctx, c.client, agent.Request{
		Operation: op,
		System:    system,
		User:      user,
		MaxTokens: c.maxTokens,
	}, &verdict)
	if errors.Is(err, agent.ErrMalformedResponse) {
		c.logger.Warn("unparseable verdict", "level", level, "error", err)
		return story.Verdict{}, fmt.Errorf("%w: %v", core.ErrMalformedVerdict, err)
	}
	if err != nil {
		return story.Verdict{}, err
	}

	if err := verdict.Validate(); err != nil {
		c.logger.Warn("invalid verdict", "level", level, "error", err)
		return story.Verdict{}, fmt.Errorf("%w: %v", core.ErrMalformedVerdict, err)
	}

	if missing := missingCriteria(rubric, verdict); len(missing) > 0 {
		c.logger.Debug("verdict omitted criteria", "level", level, "missing", missing)
	}

	return verdict, nil
}

func missingCriteria(r Rubric, v story.Verdict) []string {
	var missing []string
	for _, k := range r.Keys() {
		if _, ok := v.CriteriaScores[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
