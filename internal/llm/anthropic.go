package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic is a Client backed by the Anthropic Messages API.
type Anthropic struct {
	inner anthropic.Client
	model anthropic.Model
}

// AnthropicConfig contains configuration for the Anthropic client.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Empty means the ANTHROPIC_API_KEY
	// environment variable.
	APIKey string
	// Model is the default model. Empty means the current Sonnet release.
	Model string
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &Anthropic{
		inner: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: model,
	}, nil
}

// Chat returns the complete response to the conversation.
func (a *Anthropic) Chat(ctx context.Context, messages []Message, model string) (string, error) {
	resp, err := a.inner.Messages.New(ctx, a.buildParams(messages, model))
	if err != nil {
		return "", fmt.Errorf("anthropic chat: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}
	return text, nil
}

// ChatStream delivers the response incrementally through fn.
func (a *Anthropic) ChatStream(ctx context.Context, messages []Message, model string, fn StreamFunc) error {
	stream := a.inner.Messages.NewStreaming(ctx, a.buildParams(messages, model))
	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if err := fn(text.Text); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic chat stream: %w", err)
	}
	return nil
}

// ListModels returns the default model name. The Messages API has no
// local model inventory to enumerate.
func (a *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	return []string{string(a.model)}, nil
}

// Ping reports whether the API accepts requests with the configured key.
func (a *Anthropic) Ping(ctx context.Context) error {
	params := a.buildParams([]Message{{Role: "user", Content: "ping"}}, "")
	params.MaxTokens = 1
	if _, err := a.inner.Messages.New(ctx, params); err != nil {
		return fmt.Errorf("anthropic unreachable: %w", err)
	}
	return nil
}

// buildParams converts the conversation into Messages API parameters.
// System messages become the system prompt; the rest alternate as
// user/assistant turns.
func (a *Anthropic) buildParams(messages []Message, model string) anthropic.MessageNewParams {
	m := anthropic.Model(model)
	if m == "" {
		m = a.model
	}

	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return anthropic.MessageNewParams{
		Model:     m,
		MaxTokens: 8192,
		System:    system,
		Messages:  turns,
	}
}

// Verify Anthropic implements Client at compile time.
var _ Client = (*Anthropic)(nil)
