package agent

import "context"

// Request is one round trip to the generative text service.
type Request struct {
	// Operation labels the call in logs and metrics, e.g. "draft" or "critique".
	Operation string
	System    string
	User      string
	MaxTokens int
	// JSON asks the provider for a single JSON object.
	JSON bool
}

type AIClient interface {
	Generate(ctx context.Context, req Request) (string, error)
}
