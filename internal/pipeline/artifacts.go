package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/storage"
)

// Stage fills one completion field of an item from the item's other fields
// and its parent unit.
type Stage interface {
	Name() string
	Field() string
	Produce(ctx context.Context, item story.Item, parent story.Unit) (string, error)
}

// RunSummary counts stage outcomes across one Run.
type RunSummary struct {
	Produced int
	Skipped  int
	Failed   int
}

// Artifacts runs independent enrichment stages over a chapter's items. A
// populated field is never recomputed; a failed stage leaves its field unset
// for the next run. There is no retry loop and no escalation.
type Artifacts struct {
	ledger       *storage.Ledger
	stages       []Stage
	itemsPerUnit int
	logger       *slog.Logger
}

// NewArtifacts runs stages in the given order.
func NewArtifacts(ledger *storage.Ledger, itemsPerUnit int, stages ...Stage) *Artifacts {
	return &Artifacts{
		ledger:       ledger,
		stages:       stages,
		itemsPerUnit: itemsPerUnit,
		logger:       slog.Default().With("component", "artifacts"),
	}
}

// Seed creates empty item records for every terminal unit of the chapter.
// unitIndex 0 selects every unit. It returns the number of items created.
func (a *Artifacts) Seed(ctx context.Context, collectionID, unitIndex int) (int, error) {
	units, err := a.ledger.Units(ctx, collectionID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, u := range units {
		if unitIndex != 0 && u.UnitIndex != unitIndex {
			continue
		}
		if !u.Status.Terminal() {
			a.logger.Debug("act not finished, no scenes yet", "chapter", collectionID, "act", u.UnitIndex)
			continue
		}
		for i := 1; i <= a.itemsPerUnit; i++ {
			ok, err := a.ledger.EnsureItem(ctx, collectionID, u.UnitIndex, i)
			if err != nil {
				return created, fmt.Errorf("seeding scene %d of %s: %w", i, u.Label(), err)
			}
			if ok {
				created++
			}
		}
	}

	a.logger.Info("scenes seeded", "chapter", collectionID, "created", created)
	return created, nil
}

// Run applies each stage, in order, to every item of the chapter that lacks
// the stage's field. Each value is persisted as soon as it is produced.
func (a *Artifacts) Run(ctx context.Context, collectionID, unitIndex int) (RunSummary, error) {
	var sum RunSummary

	items, err := a.ledger.Items(ctx, collectionID)
	if err != nil {
		return sum, err
	}
	units, err := a.ledger.Units(ctx, collectionID)
	if err != nil {
		return sum, err
	}
	parents := make(map[int]story.Unit, len(units))
	for _, u := range units {
		parents[u.UnitIndex] = u
	}

	for _, stage := range a.stages {
		logger := a.logger.With("stage", stage.Name(), "chapter", collectionID)
		for i := range items {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			item := &items[i]
			if unitIndex != 0 && item.UnitIndex != unitIndex {
				continue
			}
			if item.Has(stage.Field()) {
				sum.Skipped++
				core.RecordArtifactStage(stage.Name(), "skipped")
				continue
			}

			parent, ok := parents[item.UnitIndex]
			if !ok {
				err = fmt.Errorf("%w: act %d has no record", core.ErrMissingInput, item.UnitIndex)
			} else {
				var value string
				value, err = stage.Produce(ctx, *item, parent)
				if err == nil {
					if err := a.ledger.SaveItemField(ctx, *item, stage.Field(), value); err != nil {
						return sum, fmt.Errorf("saving %s of %s: %w", stage.Field(), item.ID(), err)
					}
					item.Set(stage.Field(), value)
					sum.Produced++
					core.RecordArtifactStage(stage.Name(), "produced")
					logger.Info("stage complete", "item", item.ID())
					continue
				}
			}

			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			core.RecordArtifactStage(stage.Name(), "failed")
			if errors.Is(err, core.ErrMissingInput) || errors.Is(err, core.ErrNoAPIKey) {
				logger.Warn("stage skipped", "item", item.ID(), "reason", err)
			} else {
				logger.Error("stage failed", "item", item.ID(), "error", err)
			}
			if serr := a.ledger.SaveItemError(ctx, *item, err.Error()); serr != nil {
				return sum, fmt.Errorf("recording failure of %s: %w", item.ID(), serr)
			}
		}
	}

	a.logger.Info("artifact run complete",
		"chapter", collectionID,
		"produced", sum.Produced,
		"skipped", sum.Skipped,
		"failed", sum.Failed)
	return sum, nil
}
