// Package providers defines the LLM provider interface and response types.
package providers

import (
	"context"

	"github.com/pkg/errors"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrEmptyResponse is returned when a backend answers without any text.
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrNoAPIKey is returned when a hosted provider has no key configured.
	ErrNoAPIKey = errors.New("no API key configured")
)

// LLMResponse is the standardized response from any LLM provider.
type LLMResponse struct {
	Content      string         `json:"content"`
	FinishReason string         `json:"finish_reason"`
	Usage        map[string]int `json:"usage,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest holds all parameters for a chat completion call.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	// JSON asks the backend for a JSON object reply when it supports that mode.
	JSON bool `json:"-"`
}

// LLMProvider is the interface for all LLM backends.
type LLMProvider interface {
	// Chat sends a chat completion request. Transport, HTTP and decoding
	// failures are returned as errors, never folded into Content.
	Chat(ctx context.Context, req ChatRequest) (*LLMResponse, error)

	// DefaultModel returns the default model identifier.
	DefaultModel() string
}

// splitSystem separates system messages from the conversation turns.
// Multiple system messages are joined with a blank line.
func splitSystem(msgs []Message) (string, []Message) {
	var system string
	turns := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
