// Package llm provides chat clients for language-model backends. The
// orchestrator treats a chat call as one more awaitable unit of work;
// every backend hides behind the same Client interface.
package llm

import (
	"context"
	"errors"
)

// ErrNoBackend indicates no model backend is configured.
var ErrNoBackend = errors.New("no model backend configured")

// Message is one turn of a chat conversation.
type Message struct {
	// Role is "user", "assistant", or "system".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// StreamFunc receives one content delta per call during a streaming chat.
// Returning an error aborts the stream.
type StreamFunc func(delta string) error

// Client is a chat-capable model backend.
type Client interface {
	// Chat returns the complete response to the conversation. An empty
	// model selects the backend's configured default.
	Chat(ctx context.Context, messages []Message, model string) (string, error)

	// ChatStream delivers the response incrementally through fn.
	ChatStream(ctx context.Context, messages []Message, model string, fn StreamFunc) error

	// ListModels returns the model names the backend can serve.
	ListModels(ctx context.Context) ([]string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Prompt is a convenience wrapper for single-turn user prompts.
func Prompt(ctx context.Context, c Client, prompt, model string) (string, error) {
	if c == nil {
		return "", ErrNoBackend
	}
	return c.Chat(ctx, []Message{{Role: "user", Content: prompt}}, model)
}
