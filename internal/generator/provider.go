// Package generator asks a language model for fresh quiz questions.
package generator

import "context"

// Request is one batch prompt.
type Request struct {
	System string
	Prompt string
	// Schema is the JSON Schema definition the reply must satisfy.
	Schema map[string]any
}

// Provider returns the raw JSON reply for a request.
type Provider interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
	ModelID() string
}

// Disabled is the provider used when generation is switched off.
type Disabled struct{}

func (Disabled) Generate(context.Context, Request) ([]byte, error) {
	return nil, &ErrProviderUnavailable{}
}

func (Disabled) ModelID() string { return "none" }
