package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/config"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/logging"
	"github.com/dotcommander/vbook/internal/phase"
	"github.com/dotcommander/vbook/internal/phase/fiction"
	"github.com/dotcommander/vbook/internal/phase/scene"
	"github.com/dotcommander/vbook/internal/pipeline"
	"github.com/dotcommander/vbook/internal/storage"
)

// outputDir holds mirrored text and rendered images under the data dir.
const outputDir = "output"

// app holds the stores and clients one command needs.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStore
	ledger  *storage.Ledger
	objects *storage.FileSystem
	client  agent.AIClient
	prompts *phase.Prompts
}

// openApp opens the record store and, when needModel is set, the model
// client.
func openApp(cfg *config.Config, needModel bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		objects: storage.NewFileSystem(filepath.Join(cfg.Paths.DataDir, outputDir)),
		prompts: phase.NewPrompts(cfg.Paths.PromptDir),
	}

	if needModel {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrNoAPIKey, err)
		}
		a.client = newClient(cfg)
	}

	store, err := storage.OpenSQLite(cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	a.store = store
	a.ledger = storage.NewLedger(store)
	return a, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func newClient(cfg *config.Config) *agent.Client {
	l := cfg.Limits
	return agent.NewClient(cfg.AI.APIKey,
		agent.WithAPIConfig(cfg.AI.BaseURL, cfg.AI.Model),
		agent.WithTimeout(time.Duration(cfg.AI.Timeout)*time.Second),
		agent.WithRetry(l.MaxRetries, l.RetryBaseDelay, l.RetryMaxDelay),
		agent.WithRateLimit(l.RateLimit.RequestsPerMinute, l.RateLimit.BurstSize),
	)
}

func policy(p config.Policy) core.Policy {
	return core.Policy{Threshold: p.Threshold, MaxIterations: p.MaxIterations}
}

func (a *app) novel() *pipeline.Novel {
	cfg := a.cfg
	tokens := cfg.Limits.MaxOutputTokens

	malformed := core.NewRetrier(core.ResilienceConfig{
		MaxRetries:        cfg.Limits.MalformedRetries,
		BaseDelay:         cfg.Limits.RetryBaseDelay,
		MaxDelay:          cfg.Limits.RetryMaxDelay,
		BackoffMultiplier: 2.0,
	}, core.IsMalformed)

	controller := core.NewController(
		fiction.NewCritic(a.client, a.prompts, tokens.Critique),
		fiction.NewRefiner(a.client, a.prompts, tokens.Refine, tokens.Chapter),
		core.WithRetrier(malformed),
		core.WithRetentionFloor(cfg.Review.RetentionFloor),
	)

	return pipeline.NewNovel(pipeline.NovelConfig{
		UnitsPerCollection: cfg.Story.UnitsPerCollection,
		UnitPolicy:         policy(cfg.Review.Unit),
		CollectionPolicy:   policy(cfg.Review.Collection),
		BackgroundDir:      cfg.Paths.BackgroundDir,
	},
		a.ledger,
		a.objects,
		fiction.NewWriter(a.client, a.prompts, cfg.Story, tokens.Draft),
		controller,
		fiction.NewVoter(a.client, a.prompts),
	)
}

func (a *app) artifacts() *pipeline.Artifacts {
	cfg := a.cfg

	logger := logging.New("cli")
	characters := ""
	bg, err := fiction.LoadBackground(cfg.Paths.BackgroundDir)
	switch {
	case errors.Is(err, core.ErrMissingInput):
		logger.Warn("no character sheet, extracting scenes without it", "error", err)
	case err != nil:
		logger.Warn("reading background failed", "error", err)
	default:
		characters = bg.Characters
	}

	opts := []scene.RendererOption{
		scene.WithRendererRateLimit(cfg.Limits.RateLimit.RequestsPerMinute, cfg.Limits.RateLimit.BurstSize),
		scene.WithRendererRetrier(core.NewRetrier(core.ResilienceConfig{
			MaxRetries:        cfg.Limits.MaxRetries,
			BaseDelay:         cfg.Limits.RetryBaseDelay,
			MaxDelay:          cfg.Limits.RetryMaxDelay,
			BackoffMultiplier: 2.0,
		}, core.IsTransient)),
	}
	if cfg.Renderer.Timeout > 0 {
		opts = append(opts, scene.WithRendererTimeout(time.Duration(cfg.Renderer.Timeout)*time.Second))
	}
	renderer := scene.NewHTTPRenderer(cfg.Renderer.APIKey, cfg.Renderer.Endpoint, cfg.Renderer.ImageSize, opts...)

	return pipeline.NewArtifacts(a.ledger, cfg.Images.ScenesPerUnit,
		scene.NewExtractor(a.client, a.prompts, characters, cfg.Images.ScenesPerUnit, cfg.Limits.MaxOutputTokens.Scene),
		scene.NewPromptWriter(cfg.Images.Style),
		scene.NewRenderStage(renderer, a.objects),
	)
}
