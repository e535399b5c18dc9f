package config

import "time"

type Limits struct {
	// MaxRetries bounds transient-failure retries of a single external call.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`
	// MalformedRetries bounds re-asks when a structured response cannot be
	// parsed. These never consume the convergence budget.
	MalformedRetries int             `yaml:"malformed_retries" validate:"min=0,max=10"`
	RetryBaseDelay   time.Duration   `yaml:"retry_base_delay" validate:"min=0,max=5m"`
	RetryMaxDelay    time.Duration   `yaml:"retry_max_delay" validate:"min=0,max=30m"`
	MaxOutputTokens  MaxOutputTokens `yaml:"max_output_tokens" validate:"required"`
	RateLimit        RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

// MaxOutputTokens caps the model response size per call kind.
type MaxOutputTokens struct {
	Draft    int `yaml:"draft" validate:"required,min=100,max=64000"`
	Critique int `yaml:"critique" validate:"required,min=100,max=64000"`
	Refine   int `yaml:"refine" validate:"required,min=100,max=64000"`
	Chapter  int `yaml:"chapter" validate:"required,min=100,max=64000"`
	Scene    int `yaml:"scene" validate:"required,min=100,max=64000"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=100"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxRetries:       3,
		MalformedRetries: 3,
		RetryBaseDelay:   2 * time.Second,
		RetryMaxDelay:    30 * time.Second,
		MaxOutputTokens: MaxOutputTokens{
			Draft:    3000,
			Critique: 1500,
			Refine:   3000,
			Chapter:  8000,
			Scene:    1000,
		},
		RateLimit: RateLimitConfig{
			// One call every two seconds keeps well inside provider limits.
			RequestsPerMinute: 30,
			BurstSize:         1,
		},
	}
}
