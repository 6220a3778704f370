// Package llm is the boundary to the reasoning oracle. Everything past
// this package operates on plain strings and never branches on a
// provider-specific wire shape again.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowweave/flowweave/config"
)

// ErrUnreachable marks connectivity failures (network errors, timeouts,
// 5xx responses). These are the only failures the planner retries.
var ErrUnreachable = errors.New("llm provider unreachable")

// Provider is the interface for LLM interactions
type Provider interface {
	// Generate generates text based on a prompt
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string
	Provider        string
	MaxTokens       int
	CostPer1KInput  float64
	CostPer1KOutput float64
}

// NewProvider creates an LLM provider based on configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}

// IsRetryable reports whether an oracle failure is a connectivity failure
// worth retrying. Malformed output and client errors are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, context.DeadlineExceeded)
}
