package model

import (
	"context"
	"strings"
)

// Prompt is a single request to a vision-capable model
type Prompt struct {
	Text string
	// ImageURL optionally references an image the model should look at
	ImageURL string
}

// Invoker sends a prompt to a model and returns its free-text answer.
// The answer is untrusted and may not follow any requested format.
type Invoker interface {
	Invoke(ctx context.Context, prompt Prompt) (string, error)
}

// Provider is an Invoker that holds resources
type Provider interface {
	Invoker
	// Close releases the provider's resources
	Close() error
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// Settings are the sampling settings shared by all providers
type Settings struct {
	Model       string
	Temperature float32
}

const systemPrompt = "You are an expert financial analyst specializing in receipt processing. " +
	"You carefully read all text in receipt images and extract accurate information " +
	"about vendors, dates, items, discounts, taxes and totals."

// StripCodeFence removes a surrounding markdown code block if present
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
