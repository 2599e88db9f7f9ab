package llm

import "context"

// GenerationParams tunes a single generation request. Nil fields leave the
// provider default in place.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client is the reasoning-provider boundary: one opaque text prompt in,
// free text out. Everything above this interface treats the provider as a
// black box that may fail or return malformed output.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	// Model reports the model identifier for report metadata.
	Model() string
}
