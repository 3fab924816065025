package engine

import (
	"context"
	"strings"

	"github.com/hyperengineering/companion/internal/types"
)

// Send is the input dispatcher: the user message is appended optimistically
// and persisted best-effort, then the text is classified as a ritual
// trigger or routed to the fallback conversation. Every appended message is
// returned so thin clients can display the turn without re-fetching.
func (e *Engine) Send(ctx context.Context, text string) ([]types.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, ErrEmptyInput
	}

	userMsg := types.Message{
		ID:        e.newID(),
		Role:      types.RoleUser,
		Text:      content,
		Timestamp: e.now(),
	}
	// The sender already sees their own message; no rebroadcast.
	e.append(ctx, userMsg, types.EchoLocal)
	appended := []types.Message{userMsg}

	if ritualID, ritual, ok := e.classify(ctx, content); ok {
		return append(appended, e.startRitualFlow(ctx, ritualID, ritual)...), nil
	}

	return append(appended, e.respondFallback(ctx, content)), nil
}

// classify matches input against configured ritual chat keywords (exact
// match) or the "/start <ritualId>" prefix.
func (e *Engine) classify(ctx context.Context, content string) (string, *types.Ritual, bool) {
	if r, err := e.rituals.FindByKeyword(ctx, content); err == nil && r != nil {
		return r.ID, r, true
	}

	if strings.HasPrefix(content, "/start ") {
		fields := strings.Fields(content)
		if len(fields) >= 2 {
			id := fields[1]
			r, err := e.rituals.FindByID(ctx, id)
			if err != nil || r == nil {
				// Unknown id still routes to the ritual path so the
				// deterministic failure message names it.
				return id, nil, true
			}
			return r.ID, r, true
		}
	}
	return "", nil, false
}

// respondFallback runs the default conversational path and converts any
// failure into a retry-prompting chat message.
func (e *Engine) respondFallback(ctx context.Context, content string) types.Message {
	req := types.FallbackRequest{
		Text:         content,
		LastMessages: e.history.LastN(e.contextWindow),
	}
	if s, err := e.settings.GetSettings(ctx); err == nil {
		req.Tone = s.Tone
		req.URL = s.FallbackWebhook
	}

	reply, err := e.fallback(ctx, req)
	if err != nil {
		e.log.Warn("fallback failed", "error", err)
		msg := e.assistantMessage("Request failed. Please try again.")
		e.append(ctx, msg, types.EchoBroadcast)
		return msg
	}
	if reply == "" {
		reply = "(no text)"
	}
	msg := e.assistantMessage(reply)
	e.append(ctx, msg, types.EchoBroadcast)
	return msg
}
