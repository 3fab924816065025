package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperengineering/companion/internal/types"
)

// Compile-time interface check
var _ Responder = (*Model)(nil)

// CompletionsService defines the interface for chat completion API calls.
// This abstraction enables testing without calling the real OpenAI API.
type CompletionsService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Model implements the fallback responder using OpenAI's chat API.
type Model struct {
	completions CompletionsService
	model       openai.ChatModel
}

// NewModel creates a model-backed fallback responder.
func NewModel(apiKey, model string) *Model {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Model{
		completions: client.Chat.Completions,
		model:       openai.ChatModel(model),
	}
}

// Respond generates a companion reply flavored by the configured tone.
func (m *Model) Respond(ctx context.Context, req types.FallbackRequest) (string, error) {
	system := "You are a gentle personal companion. Reply briefly and supportively."
	if req.Tone != "" {
		system = fmt.Sprintf("You are a personal companion. Your tone is %s. Reply briefly and supportively.", req.Tone)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
	}
	for _, msg := range req.LastMessages {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		if msg.Role == types.RoleUser {
			messages = append(messages, openai.UserMessage(text))
		} else {
			messages = append(messages, openai.AssistantMessage(text))
		}
	}
	messages = append(messages, openai.UserMessage(req.Text))

	resp, err := m.completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(messages),
		Model:    openai.F(m.model),
	})
	if err != nil {
		return "", fmt.Errorf("fallback completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("fallback completion failed: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// ModelName returns the chat model name.
func (m *Model) ModelName() string {
	return string(m.model)
}
