package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/types"
)

const defaultQuestionPrompt = "What is on your mind right now?"

// applyTransition interprets a transition descriptor when its card's
// terminal event fires. Descriptors are data; all effects live here.
func (e *Engine) applyTransition(ctx context.Context, src types.Message, t *cards.Transition) {
	switch t.Type {
	case cards.TransitionQuestionSave:
		e.append(ctx, e.nextQuestionMessage(src, t), types.EchoBroadcast)

	case cards.TransitionWebhookPost:
		e.postNotification(ctx, t)

	case cards.TransitionWinddownIntro:
		e.startRitualFlow(ctx, "winddown", nil)

	case cards.TransitionGoodnight:
		e.ShowGoodnight(ctx)

	default:
		e.log.Warn("unknown transition type", "type", t.Type)
	}
}

// nextQuestionMessage synthesizes the follow-up questionSave card,
// inheriting session, question key, save target, and nested transition from
// the source card when the descriptor does not override them.
func (e *Engine) nextQuestionMessage(src types.Message, t *cards.Transition) types.Message {
	var srcQ cards.QuestionSave
	if src.Metadata != nil && src.Metadata.QuestionSave != nil {
		srcQ = *src.Metadata.QuestionSave
	}

	q := cards.QuestionSave{
		Prompt:    t.Prompt,
		SaveTo:    t.SaveTo,
		SessionID: srcQ.SessionID,
		Question:  t.Question,
		Next:      t.Next,
	}
	if q.Prompt == "" {
		q.Prompt = defaultQuestionPrompt
	}
	if t.SessionID != "" {
		q.SessionID = t.SessionID
	}
	if q.SaveTo == "" {
		q.SaveTo = srcQ.SaveTo
	}
	if t.SaveTo == "" && q.SessionID != "" {
		q.SaveTo = cards.SaveTargetWinddown
	}

	return types.Message{
		ID:        e.newID(),
		Role:      types.RoleAssistant,
		Timestamp: e.now(),
		Metadata:  &cards.Payload{Kind: cards.KindQuestionSave, QuestionSave: &q},
	}
}

// postNotification posts the descriptor payload (or the canned evaluation
// prompt) to the notifications webhook and reports the outcome in chat.
func (e *Engine) postNotification(ctx context.Context, t *cards.Transition) {
	url := ""
	if s, err := e.settings.GetSettings(ctx); err == nil {
		url = strings.TrimSpace(s.NotificationsWebhook)
	} else {
		e.log.Warn("settings unavailable for notification", "error", err)
	}

	if url == "" {
		e.append(ctx, e.assistantMessage("No notifications webhook configured."), types.EchoBroadcast)
		return
	}

	payload := any(map[string]string{"text": "How do you feel about your impulse now?"})
	if len(t.Payload) > 0 {
		payload = json.RawMessage(t.Payload)
	}

	if _, err := e.notify.Post(ctx, url, payload); err != nil {
		e.log.Warn("notification webhook failed", "error", err)
		e.append(ctx, e.assistantMessage("Evaluation ping failed."), types.EchoBroadcast)
		return
	}
	e.append(ctx, e.assistantMessage("Evaluation ping sent."), types.EchoBroadcast)
}

// startRitualFlow re-invokes the ritual trigger and appends every message
// it returns. Failures surface as a chat message naming the ritual.
func (e *Engine) startRitualFlow(ctx context.Context, ritualID string, ritual *types.Ritual) []types.Message {
	req := types.TriggerRequest{
		RitualID: ritualID,
		Context:  e.history.LastN(e.contextWindow),
	}
	if s, err := e.settings.GetSettings(ctx); err == nil {
		req.Tone = s.Tone
	}
	if ritual != nil {
		req.Webhook = ritual.Webhook
		req.Buttons = ritual.Buttons
	}

	resp, err := e.trigger.Trigger(ctx, req)
	if err != nil || !resp.OK {
		e.log.Warn("ritual trigger failed", "ritual_id", ritualID, "error", err)
		msg := e.assistantMessage("Failed to start ritual " + ritualID + ".")
		e.append(ctx, msg, types.EchoBroadcast)
		return []types.Message{msg}
	}

	var appended []types.Message
	if len(resp.Messages) > 0 {
		for _, m := range resp.Messages {
			if m.ID == "" {
				m.ID = e.newID()
			}
			if m.Timestamp == 0 {
				m.Timestamp = e.now()
			}
			e.append(ctx, m, types.EchoBroadcast)
			appended = append(appended, m)
		}
		return appended
	}

	text := resp.Text
	if text == "" {
		text = "(no text)"
	}
	buttons := resp.Buttons
	if len(buttons) == 0 && ritual != nil {
		buttons = ritual.Buttons
	}
	msg := types.Message{
		ID:        e.newID(),
		Role:      types.RoleRitual,
		Text:      text,
		Buttons:   buttons,
		RitualID:  ritualID,
		Timestamp: e.now(),
	}
	e.append(ctx, msg, types.EchoBroadcast)
	return []types.Message{msg}
}

// SaveAnswer runs the questionSave card's save flow: persist the answer,
// inject any server-provided reply, honor the goodnight signal, otherwise
// follow the card's own transition. A failed save leaves the card
// re-editable in the error state.
func (e *Engine) SaveAnswer(ctx context.Context, cardID, text string) ([]types.Message, error) {
	card, ok := e.history.Get(cardID)
	if !ok || card.CardKind() != cards.KindQuestionSave {
		return nil, ErrUnknownCard
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyAnswer
	}
	q := card.Metadata.QuestionSave
	if q == nil {
		q = &cards.QuestionSave{}
	}

	e.setSaveState(cardID, cards.SaveSaving)

	req := types.AnswerRequest{
		ID:        "mind_" + e.newID(),
		Text:      text,
		CreatedAt: e.now(),
		SessionID: q.SessionID,
		Question:  q.Question,
	}
	// An explicit mind target files the answer as a plain note even inside
	// a winddown session; chain inheritance still uses the card's session.
	if q.SaveTo == cards.SaveTargetMind {
		req.SessionID = ""
	}

	resp, err := e.answers.Save(ctx, req)
	if err != nil || !resp.OK {
		e.setSaveState(cardID, cards.SaveError)
		if err != nil {
			return nil, err
		}
		return nil, ErrSaveRejected
	}
	e.setSaveState(cardID, cards.SaveSaved)

	var appended []types.Message

	if resp.Message != nil {
		if _, exists := e.history.Get(resp.Message.ID); !exists {
			e.append(ctx, *resp.Message, types.EchoBroadcast)
			appended = append(appended, *resp.Message)
		}
	}

	if resp.Goodnight {
		if resp.Message != nil && resp.Message.CardKind() == cards.KindGoodnight {
			e.MarkGoodnightShown()
		} else {
			e.ShowGoodnight(ctx)
		}
		// Goodnight is terminal: no further chaining.
		return appended, nil
	}

	switch {
	case q.Next != nil:
		e.applyTransition(ctx, card, q.Next)
	case q.Question == "one_thing_learned",
		strings.Contains(strings.ToLower(q.Prompt), "one thing you have learned"):
		// Final winddown question without a descriptor still closes the night.
		e.ShowGoodnight(ctx)
	}
	return appended, nil
}
