package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// Ollama is a Client backed by a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

// OllamaConfig contains configuration for the Ollama client.
type OllamaConfig struct {
	// Host is the Ollama base URL. Empty means http://127.0.0.1:11434.
	Host string
	// Model is the default model name.
	Model string
	// Timeout bounds each request. Zero means 300s, matching the
	// generation budget of large local models.
	Timeout time.Duration
}

// NewOllama creates an Ollama client.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	host := cfg.Host
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}

	hc := &http.Client{Timeout: timeout}
	return &Ollama{client: api.NewClient(base, hc), model: cfg.Model}, nil
}

// Chat returns the complete response to the conversation.
func (o *Ollama) Chat(ctx context.Context, messages []Message, model string) (string, error) {
	if model == "" {
		model = o.model
	}

	stream := false
	var content string
	err := o.client.Chat(ctx, &api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
		Options:  map[string]any{"temperature": 0.7},
	}, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return content, nil
}

// ChatStream delivers the response incrementally through fn.
func (o *Ollama) ChatStream(ctx context.Context, messages []Message, model string, fn StreamFunc) error {
	if model == "" {
		model = o.model
	}

	stream := true
	err := o.client.Chat(ctx, &api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
		Options:  map[string]any{"temperature": 0.7},
	}, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return fn(resp.Message.Content)
	})
	if err != nil {
		return fmt.Errorf("ollama chat stream: %w", err)
	}
	return nil
}

// ListModels returns the names of locally available models.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	resp, err := o.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ollama list models: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping reports whether the Ollama server is reachable.
func (o *Ollama) Ping(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	return nil
}

func toOllamaMessages(messages []Message) []api.Message {
	out := make([]api.Message, len(messages))
	for i, m := range messages {
		out[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// Verify Ollama implements Client at compile time.
var _ Client = (*Ollama)(nil)
