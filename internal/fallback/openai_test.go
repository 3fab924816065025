package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperengineering/companion/internal/types"
)

type fakeCompletions struct {
	params openai.ChatCompletionNewParams
	resp   *openai.ChatCompletion
	err    error
}

func (f *fakeCompletions) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.params = params
	return f.resp, f.err
}

func completionWith(text string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: text}},
		},
	}
}

func TestModelRespond(t *testing.T) {
	fake := &fakeCompletions{resp: completionWith("a gentle reply")}
	m := &Model{completions: fake, model: "gpt-4o-mini"}

	text, err := m.Respond(context.Background(), types.FallbackRequest{
		Text: "how are you?",
		Tone: "Snarky",
		LastMessages: []types.Message{
			{Role: types.RoleUser, Text: "earlier question"},
			{Role: types.RoleAssistant, Text: "earlier answer"},
			{Role: types.RoleRitual, Text: ""},
		},
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if text != "a gentle reply" {
		t.Errorf("text = %q", text)
	}

	msgs := fake.params.Messages.Value
	// System prompt + two non-empty history entries + the new input.
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
}

func TestModelRespond_Failure(t *testing.T) {
	m := &Model{completions: &fakeCompletions{err: errors.New("rate limited")}, model: "gpt-4o-mini"}
	if _, err := m.Respond(context.Background(), types.FallbackRequest{Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}

	m = &Model{completions: &fakeCompletions{resp: &openai.ChatCompletion{}}, model: "gpt-4o-mini"}
	if _, err := m.Respond(context.Background(), types.FallbackRequest{Text: "hi"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
