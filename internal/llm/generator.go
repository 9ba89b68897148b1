// Package llm provides text generation for the iteration engine. A
// Generator turns a prompt into revised document content; providers are
// selected by model prefix.
package llm

import (
	"context"
	"fmt"
)

// GenerateRequest carries one generation call.
type GenerateRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int64
	Temperature *float64
}

// GenerateResponse is the provider's answer plus token accounting.
type GenerateResponse struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
	StopReason   string
}

// Generator produces document content from a prompt.
type Generator interface {
	Name() string
	SupportsModel(model string) bool
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// ProviderError wraps a provider-side generation failure.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
