package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dotcommander/vbook/internal/domain/story"
)

// Critic scores content against the rubric for level.
type Critic interface {
	Critique(ctx context.Context, level story.Level, content string) (story.Verdict, error)
}

// Refiner rewrites content, acting only on the listed suggestions.
type Refiner interface {
	Refine(ctx context.Context, level story.Level, content string, suggestions []string) (string, error)
}

// Policy is one level's pass threshold and refinement budget.
type Policy struct {
	Threshold     int
	MaxIterations int
}

func (p Policy) validate() error {
	if p.Threshold < story.MinScore || p.Threshold > story.MaxScore {
		return NewPreconditionError("converge", "threshold %d outside %d-%d", p.Threshold, story.MinScore, story.MaxScore)
	}
	if p.MaxIterations < 1 {
		return NewPreconditionError("converge", "max iterations must be at least 1, got %d", p.MaxIterations)
	}
	return nil
}

// Checkpoint persists the caller's record after a state transition.
type Checkpoint func(ctx context.Context) error

// Controller alternates critique and refinement until the score clears the
// threshold or the refinement budget is spent. It is a plain synchronous loop;
// every transition is checkpointed so an interrupted run resumes from the last
// persisted state.
type Controller struct {
	critic         Critic
	refiner        Refiner
	retrier        *Retrier
	retentionFloor float64
	logger         *slog.Logger
}

type ControllerOption func(*Controller)

// WithRetrier replaces the retrier used for malformed critiques and rejected
// refinements.
func WithRetrier(r *Retrier) ControllerOption {
	return func(c *Controller) {
		c.retrier = r
	}
}

// WithRetentionFloor rejects refinements whose word retention falls below
// floor. Zero disables the gate; retention is logged either way.
func WithRetentionFloor(floor float64) ControllerOption {
	return func(c *Controller) {
		c.retentionFloor = floor
	}
}

func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func NewController(critic Critic, refiner Refiner, opts ...ControllerOption) *Controller {
	c := &Controller{
		critic:  critic,
		refiner: refiner,
		retrier: NewRetrier(DefaultResilienceConfig(), IsMalformed),
		logger:  slog.Default().With("component", "convergence"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Converge drives w to a terminal status. A terminal w is returned untouched
// with no stage calls. Errors other than quality non-convergence leave w in
// draft with everything up to the failing call already checkpointed.
func (c *Controller) Converge(ctx context.Context, label string, level story.Level, w *story.Work, policy Policy, save Checkpoint) (story.Status, error) {
	logger := c.logger.With("target", label, "level", string(level))

	if w.Status.Terminal() {
		logger.Debug("already terminal, skipping", "status", w.Status, "score", w.Score, "iterations", w.Iterations)
		return w.Status, nil
	}
	if err := policy.validate(); err != nil {
		return w.Status, err
	}
	if w.Status == "" {
		w.Status = story.StatusDraft
	}

	for {
		if err := ctx.Err(); err != nil {
			return w.Status, err
		}

		verdict, err := c.critique(ctx, label, level, w.Content)
		if err != nil {
			return w.Status, fmt.Errorf("critiquing %s: %w", label, err)
		}
		w.Apply(verdict)
		RecordVerdict(string(level), verdict.OverallScore)

		logger.Info("reviewed",
			"score", verdict.OverallScore,
			"threshold", policy.Threshold,
			"iterations", w.Iterations,
			"max_iterations", policy.MaxIterations)

		switch {
		case verdict.OverallScore >= policy.Threshold:
			w.Status = story.StatusApproved
		case w.Iterations >= policy.MaxIterations:
			w.Status = story.StatusNeedsHumanReview
		}

		if err := save(ctx); err != nil {
			return w.Status, fmt.Errorf("saving review of %s: %w", label, err)
		}

		if w.Status.Terminal() {
			RecordOutcome(string(level), string(w.Status))
			if w.Status == story.StatusApproved {
				logger.Info("approved", "score", w.Score, "iterations", w.Iterations)
			} else {
				logger.Warn("escalated for human review",
					"score", w.Score,
					"iterations", w.Iterations,
					"weaknesses", w.Weaknesses)
			}
			return w.Status, nil
		}

		suggestions := verdict.Suggestions
		if len(suggestions) == 0 {
			// A verdict below threshold always lists weaknesses; act on those.
			suggestions = verdict.Weaknesses
		}

		revised, err := c.refine(ctx, label, level, w.Content, suggestions)
		if err != nil {
			return w.Status, fmt.Errorf("refining %s: %w", label, err)
		}
		w.Content = revised
		w.Iterations++
		RecordRefineCycle(string(level))

		if err := save(ctx); err != nil {
			return w.Status, fmt.Errorf("saving refinement of %s: %w", label, err)
		}
		logger.Info("refined", "iterations", w.Iterations, "words", len(splitWords(revised)))
	}
}

func (c *Controller) critique(ctx context.Context, label string, level story.Level, content string) (story.Verdict, error) {
	var verdict story.Verdict
	err := c.retrier.ExecuteWithRetry(ctx, "critique "+label, func(ctx context.Context) error {
		v, err := c.critic.Critique(ctx, level, content)
		if err != nil {
			return err
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
		}
		verdict = v
		return nil
	})
	return verdict, err
}

func (c *Controller) refine(ctx context.Context, label string, level story.Level, content string, suggestions []string) (string, error) {
	var revised string
	err := c.retrier.ExecuteWithRetry(ctx, "refine "+label, func(ctx context.Context) error {
		out, err := c.refiner.Refine(ctx, level, content, suggestions)
		if err != nil {
			return err
		}
		retention := Retention(content, out)
		c.logger.Debug("refinement retention", "target", label, "retention", fmt.Sprintf("%.2f", retention))
		if c.retentionFloor > 0 && retention < c.retentionFloor {
			return fmt.Errorf("%w: %.2f below floor %.2f", ErrLowRetention, retention, c.retentionFloor)
		}
		revised = out
		return nil
	})
	return revised, err
}
