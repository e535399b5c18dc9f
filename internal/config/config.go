package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AI       AIConfig       `yaml:"ai" validate:"required"`
	Renderer RendererConfig `yaml:"renderer"`
	Paths    PathsConfig    `yaml:"paths" validate:"required"`
	Story    StoryConfig    `yaml:"story" validate:"required"`
	Review   ReviewConfig   `yaml:"review" validate:"required"`
	Images   ImagesConfig   `yaml:"images"`
	Limits   Limits         `yaml:"limits" validate:"required"`
}

type AIConfig struct {
	// APIKey is optional at load time so read-only commands work without
	// credentials. Commands that call the model use RequireAPIKey.
	APIKey  string `yaml:"api_key" validate:"omitempty,min=20"`
	Model   string `yaml:"model" validate:"required"`
	BaseURL string `yaml:"base_url" validate:"required,url"`
	Timeout int    `yaml:"timeout" validate:"required,min=10,max=3600"`
}

type RendererConfig struct {
	APIKey    string `yaml:"api_key"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	ImageSize string `yaml:"image_size"`
	Timeout   int    `yaml:"timeout" validate:"omitempty,min=10,max=3600"`
}

type PathsConfig struct {
	DataDir string `yaml:"data_dir" validate:"required"`
	// Database and BackgroundDir default to vbook.db and background/ under
	// DataDir when left empty.
	Database      string `yaml:"database" validate:"required"`
	BackgroundDir string `yaml:"background_dir" validate:"required"`
	// PromptDir may hold override templates named after each stage
	// (writer.txt, act_critic.txt, ...). Missing files fall back to built-ins.
	PromptDir string `yaml:"prompt_dir"`
}

type StoryConfig struct {
	UnitsPerCollection int `yaml:"units_per_collection" validate:"required,min=1,max=50"`
	MinUnitWords       int `yaml:"min_unit_words" validate:"required,min=1"`
	MaxUnitWords       int `yaml:"max_unit_words" validate:"required,gtefield=MinUnitWords"`
}

// Policy is one level's convergence knobs.
type Policy struct {
	Threshold     int `yaml:"threshold" validate:"required,min=1,max=10"`
	MaxIterations int `yaml:"max_iterations" validate:"required,min=1,max=20"`
}

type ReviewConfig struct {
	Unit       Policy `yaml:"unit" validate:"required"`
	Collection Policy `yaml:"collection" validate:"required"`
	// RetentionFloor rejects refinements that keep less than this fraction
	// of the original words. Zero disables the check.
	RetentionFloor float64 `yaml:"retention_floor" validate:"min=0,max=1"`
}

type ImagesConfig struct {
	ScenesPerUnit int    `yaml:"scenes_per_unit" validate:"min=0,max=20"`
	Style         string `yaml:"style"`
}

// Default returns a complete configuration with no credentials.
func Default() Config {
	return Config{
		AI: AIConfig{
			Model:   "claude-3-5-sonnet-20241022",
			BaseURL: "https://api.anthropic.com/v1",
			Timeout: 300,
		},
		Renderer: RendererConfig{
			Endpoint:  "https://fal.run/fal-ai/flux/schnell",
			ImageSize: "landscape_16_9",
			Timeout:   120,
		},
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Story: StoryConfig{
			UnitsPerCollection: 5,
			MinUnitWords:       800,
			MaxUnitWords:       1200,
		},
		Review: ReviewConfig{
			Unit:       Policy{Threshold: 9, MaxIterations: 5},
			Collection: Policy{Threshold: 9, MaxIterations: 3},
		},
		Images: ImagesConfig{
			ScenesPerUnit: 2,
			Style: "2D animated film style, hand-drawn line art, vibrant colour palette, " +
				"cinematic composition, soft natural lighting",
		},
		Limits: DefaultLimits(),
	}
}

// Load reads .env, then the YAML config at path (or the discovered default
// location), layering it over Default. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path == "" {
		path = getConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults + environment
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// RequireAPIKey fails when no model credentials were configured.
func (c *Config) RequireAPIKey() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("API key is required: set VBOOK_API_KEY or ai.api_key")
	}
	return nil
}

func (c *Config) applyEnv() {
	if c.AI.APIKey == "" || strings.HasPrefix(c.AI.APIKey, "${") {
		c.AI.APIKey = firstEnv("VBOOK_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
	}
	if c.Renderer.APIKey == "" || strings.HasPrefix(c.Renderer.APIKey, "${") {
		c.Renderer.APIKey = os.Getenv("FAL_KEY")
	}
	if model := os.Getenv("VBOOK_MODEL"); model != "" {
		c.AI.Model = model
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getConfigPath() string {
	// 1. Explicit config path via environment variable
	if path := os.Getenv("VBOOK_CONFIG"); path != "" {
		return path
	}

	// 2. XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vbook", "config.yaml")
	}

	// 3. ~/.config/vbook/config.yaml
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "vbook", "config.yaml")
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "vbook")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "vbook")
}

// expandTilde expands a tilde (~) at the beginning of a path to the user's home directory
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) validate() error {
	c.Paths.DataDir = expandTilde(c.Paths.DataDir)
	if c.Paths.Database == "" && c.Paths.DataDir != "" {
		c.Paths.Database = filepath.Join(c.Paths.DataDir, "vbook.db")
	}
	if c.Paths.BackgroundDir == "" && c.Paths.DataDir != "" {
		c.Paths.BackgroundDir = filepath.Join(c.Paths.DataDir, "background")
	}
	c.Paths.Database = expandTilde(c.Paths.Database)
	c.Paths.BackgroundDir = expandTilde(c.Paths.BackgroundDir)
	c.Paths.PromptDir = expandTilde(c.Paths.PromptDir)

	if c.Limits.RateLimit.RequestsPerMinute == 0 {
		c.Limits.RateLimit = DefaultLimits().RateLimit
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}
