// Package model abstracts LLM providers behind a minimal completion
// interface. The feedback pipeline uses it for sentiment analysis; anything
// needing a single-prompt completion can share the same adapters.
package model

import (
	"context"
	"fmt"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface for single-prompt text completion.
type Model interface {
	// Complete sends the prompt and returns the model's text response.
	Complete(ctx context.Context, prompt string) (string, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
// It returns canned completions keyed by prompt.
type MockModel struct {
	info      Info
	responses map[string]string
}

// Compile-time check that MockModel satisfies Model.
var _ Model = (*MockModel)(nil)

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Complete implements Model.
func (m *MockModel) Complete(_ context.Context, prompt string) (string, error) {
	if resp, ok := m.responses[prompt]; ok {
		return resp, nil
	}
	return fmt.Sprintf("Mock response to: %s", prompt), nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
