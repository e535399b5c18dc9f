package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dotcommander/vbook/internal/domain/story"
)

// Aggregator rolls a collection of terminal units into combined content and
// converges it with the collection-level policy.
type Aggregator struct {
	controller *Controller
	policy     Policy
	logger     *slog.Logger
}

func NewAggregator(controller *Controller, policy Policy) *Aggregator {
	return &Aggregator{
		controller: controller,
		policy:     policy,
		logger:     slog.Default().With("component", "aggregator"),
	}
}

// Aggregate requires every unit of c to be terminal; otherwise it returns a
// PreconditionError without calling save. Combined content is assembled once
// and then refined in place, so a resumed run continues from the persisted
// rollup rather than re-concatenating units.
func (a *Aggregator) Aggregate(ctx context.Context, c *story.Collection, save Checkpoint) (story.Status, error) {
	if !c.Ready() {
		if len(c.Units) == 0 {
			return "", NewPreconditionError("aggregate", "collection %d has no units", c.ID)
		}
		return "", NewPreconditionError("aggregate", "collection %d has non-terminal units %v", c.ID, c.Pending())
	}

	if !c.Aggregated {
		c.Combined = story.NewWork(c.Combine())
		c.Aggregated = true
		if err := save(ctx); err != nil {
			return "", fmt.Errorf("saving combined content for collection %d: %w", c.ID, err)
		}
		a.logger.Info("combined units",
			"collection", c.ID,
			"units", len(c.Units),
			"words", len(splitWords(c.Combined.Content)))
	}

	label := fmt.Sprintf("chapter %d", c.ID)
	return a.controller.Converge(ctx, label, story.LevelCollection, &c.Combined, a.policy, save)
}
