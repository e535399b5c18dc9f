// Package pipeline sequences the stages into the operator-facing phases:
// generate and review chapters, propose plot options, run the per-scene
// artifact stages and report status. Everything it knows about progress is
// read back from the record store, so every phase can be re-run safely.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/phase/fiction"
	"github.com/dotcommander/vbook/internal/storage"
)

// Drafter produces the first draft of a unit.
type Drafter interface {
	Draft(ctx context.Context, req fiction.DraftRequest) (string, error)
}

// Proposer generates plot options for the collection after collectionID.
type Proposer interface {
	Propose(ctx context.Context, collectionID int, combined string) (story.Vote, error)
}

// NovelConfig holds the fixed knobs of a run.
type NovelConfig struct {
	UnitsPerCollection int
	UnitPolicy         core.Policy
	CollectionPolicy   core.Policy
	BackgroundDir      string
}

// Novel runs the generate, review and vote phases for one chapter at a time.
// It assumes it is the only writer of its ledger.
type Novel struct {
	cfg        NovelConfig
	ledger     *storage.Ledger
	objects    storage.ObjectStore
	drafter    Drafter
	controller *core.Controller
	aggregator *core.Aggregator
	proposer   Proposer
	logger     *slog.Logger
}

// NewNovel wires the phases. objects may be nil, which disables mirroring.
func NewNovel(cfg NovelConfig, ledger *storage.Ledger, objects storage.ObjectStore, drafter Drafter, controller *core.Controller, proposer Proposer) *Novel {
	return &Novel{
		cfg:        cfg,
		ledger:     ledger,
		objects:    objects,
		drafter:    drafter,
		controller: controller,
		aggregator: core.NewAggregator(controller, cfg.CollectionPolicy),
		proposer:   proposer,
		logger:     slog.Default().With("component", "novel"),
	}
}

func (n *Novel) checkCollection(op string, collectionID int) error {
	if collectionID < 1 {
		return core.NewPreconditionError(op, "chapter must be at least 1, got %d", collectionID)
	}
	return nil
}

// Generate walks the chapter's units in order. Terminal units are skipped
// (only re-mirrored if an earlier mirror failed), stored drafts are converged, and missing units are drafted from the
// approved units before them and then converged. It stops at the first unit
// that does not reach a terminal state, because later units depend on it.
// Unit-scoped failures are recorded on the unit and do not fail the call.
func (n *Novel) Generate(ctx context.Context, collectionID int) error {
	if err := n.checkCollection("generate", collectionID); err != nil {
		return err
	}
	logger := n.logger.With("chapter", collectionID)

	bg, err := fiction.LoadBackground(n.cfg.BackgroundDir)
	if errors.Is(err, core.ErrMissingInput) {
		logger.Warn("background material missing, skipping generation", "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	direction := ""
	if vote, ok, err := n.ledger.Vote(ctx, collectionID); err != nil {
		return fmt.Errorf("loading plot direction: %w", err)
	} else if ok {
		direction = vote.WinningText
	}

	var previous []string
	for idx := 1; idx <= n.cfg.UnitsPerCollection; idx++ {
		u, found, err := n.ledger.Unit(ctx, collectionID, idx)
		if err != nil {
			return err
		}
		if !found {
			u = story.Unit{CollectionID: collectionID, UnitIndex: idx, Work: story.NewWork("")}
		}

		if !u.Status.Terminal() {
			if u.Content == "" {
				content, err := n.drafter.Draft(ctx, fiction.DraftRequest{
					Background:    bg,
					CollectionID:  collectionID,
					UnitIndex:     idx,
					Previous:      previous,
					PlotDirection: direction,
				})
				if err != nil {
					return n.unitFailed(ctx, &u, fmt.Errorf("drafting: %w", err))
				}
				u.Work = story.NewWork(content)
				if err := n.ledger.SaveUnit(ctx, &u); err != nil {
					return err
				}
				logger.Info("drafted", "act", idx, "words", core.WordCount(content))
			}

			if err := n.convergeUnit(ctx, &u); err != nil {
				return n.unitFailed(ctx, &u, err)
			}
		} else if err := n.mirrorUnit(ctx, &u); err != nil {
			return err
		}

		if u.Status == story.StatusApproved {
			previous = append(previous, u.Content)
		}
	}

	logger.Info("generation complete", "acts", n.cfg.UnitsPerCollection)
	return nil
}

// Review converges any stored drafts of the chapter, then aggregates once
// every unit is terminal. Missing units are left to Generate.
func (n *Novel) Review(ctx context.Context, collectionID int) error {
	if err := n.checkCollection("review", collectionID); err != nil {
		return err
	}
	logger := n.logger.With("chapter", collectionID)

	units, err := n.ledger.Units(ctx, collectionID)
	if err != nil {
		return err
	}
	for i := range units {
		u := &units[i]
		if u.Status.Terminal() {
			if err := n.mirrorUnit(ctx, u); err != nil {
				return err
			}
			continue
		}
		if u.Content == "" {
			continue
		}
		if err := n.convergeUnit(ctx, u); err != nil {
			if ferr := n.unitFailed(ctx, u, err); ferr != nil {
				return ferr
			}
		}
	}

	c, err := n.ledger.Collection(ctx, collectionID)
	if err != nil {
		return err
	}
	if missing := n.missingUnits(c); len(missing) > 0 {
		logger.Warn("chapter incomplete, not aggregating", "missing_acts", missing)
		return nil
	}
	if !c.Ready() {
		logger.Warn("chapter has unfinished acts, not aggregating", "pending_acts", c.Pending())
		return nil
	}

	c.Combined.LastError = ""
	save := func(ctx context.Context) error { return n.ledger.SaveCollection(ctx, &c) }
	wasTerminal := c.Aggregated && c.Combined.Status.Terminal()

	status, err := n.aggregator.Aggregate(ctx, &c, save)
	if err != nil {
		if core.IsPrecondition(err) || !c.Aggregated || ctx.Err() != nil {
			return err
		}
		c.Combined.LastError = err.Error()
		logger.Error("chapter review failed", "error", err)
		return save(ctx)
	}

	if status.Terminal() && (!wasTerminal || c.ArtifactRef == "") {
		if handle, ok := n.mirror(ctx, storage.CollectionObjectName(c.ID), c.Combined.Content, c.ID); ok {
			c.ArtifactRef = handle
			return save(ctx)
		}
	}
	return nil
}

// Vote proposes plot options for the next chapter. It requires the chapter
// to be aggregated and terminal, and never replaces existing options.
func (n *Novel) Vote(ctx context.Context, collectionID int) error {
	if err := n.checkCollection("vote", collectionID); err != nil {
		return err
	}
	c, err := n.ledger.Collection(ctx, collectionID)
	if err != nil {
		return err
	}
	if !c.Aggregated || !c.Combined.Status.Terminal() {
		return core.NewPreconditionError("vote", "chapter %d has not finished review", collectionID)
	}

	if _, ok, err := n.ledger.Vote(ctx, collectionID+1); err != nil {
		return err
	} else if ok {
		n.logger.Info("plot options already exist, skipping", "for_chapter", collectionID+1)
		return nil
	}

	vote, err := n.proposer.Propose(ctx, collectionID, c.Combined.Content)
	if err != nil {
		return err
	}
	_, err = n.ledger.SaveVote(ctx, vote)
	return err
}

// Status reads every table and builds the report. It writes nothing.
func (n *Novel) Status(ctx context.Context) (*Report, error) {
	return BuildReport(ctx, n.ledger, n.cfg.UnitsPerCollection)
}

func (n *Novel) convergeUnit(ctx context.Context, u *story.Unit) error {
	u.LastError = ""
	save := func(ctx context.Context) error { return n.ledger.SaveUnit(ctx, u) }

	status, err := n.controller.Converge(ctx, u.Label(), story.LevelUnit, &u.Work, n.cfg.UnitPolicy, save)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return n.mirrorUnit(ctx, u)
	}
	return nil
}

// mirrorUnit copies a terminal unit to the object store unless it already
// has a handle, and records the new handle.
func (n *Novel) mirrorUnit(ctx context.Context, u *story.Unit) error {
	if u.ArtifactRef != "" {
		return nil
	}
	handle, ok := n.mirror(ctx, storage.UnitObjectName(u.UnitIndex), u.Content, u.CollectionID)
	if !ok {
		return nil
	}
	u.ArtifactRef = handle
	return n.ledger.SaveUnit(ctx, u)
}

// unitFailed records err on the unit and reports whether the run must stop.
// Precondition and cancellation errors propagate; anything else is stored in
// last_error, leaving the unit in draft for the next run.
func (n *Novel) unitFailed(ctx context.Context, u *story.Unit, err error) error {
	if core.IsPrecondition(err) || ctx.Err() != nil {
		return err
	}
	n.logger.Error("act failed", "chapter", u.CollectionID, "act", u.UnitIndex, "error", err)
	u.LastError = err.Error()
	if serr := n.ledger.SaveUnit(ctx, u); serr != nil {
		return fmt.Errorf("recording failure of %s: %w", u.Label(), serr)
	}
	return nil
}

func (n *Novel) missingUnits(c story.Collection) []int {
	have := make(map[int]bool, len(c.Units))
	for _, u := range c.Units {
		have[u.UnitIndex] = true
	}
	var missing []int
	for idx := 1; idx <= n.cfg.UnitsPerCollection; idx++ {
		if !have[idx] {
			missing = append(missing, idx)
		}
	}
	return missing
}

// mirror copies text to the object store. Failures are logged only.
func (n *Novel) mirror(ctx context.Context, name, content string, collectionID int) (string, bool) {
	if n.objects == nil {
		return "", false
	}
	handle, err := n.objects.Write(ctx, name, []byte(content), storage.ChapterDir(collectionID))
	if err != nil {
		n.logger.Warn("mirroring failed", "object", name, "error", err)
		return "", false
	}
	return handle, true
}
