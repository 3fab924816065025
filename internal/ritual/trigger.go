package ritual

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/store"
	"github.com/hyperengineering/companion/internal/types"
	"github.com/hyperengineering/companion/internal/webhook"
)

// WinddownSource provides the question chain for winddown sessions.
type WinddownSource interface {
	NextWinddownQuestion(ctx context.Context, sessionID string) (*store.WinddownStep, error)
}

// Service is the ritual-trigger proxy: it turns a trigger request into the
// scripted messages for that ritual, calling the configured webhook when
// one is set and falling back to the built-in scripts otherwise.
type Service struct {
	registry *Registry
	winddown WinddownSource
	client   *webhook.Client

	now   func() int64
	newID func() string
	log   *slog.Logger
}

// NewService creates a trigger service.
func NewService(registry *Registry, winddown WinddownSource, client *webhook.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		registry: registry,
		winddown: winddown,
		client:   client,
		now:      func() int64 { return time.Now().UnixMilli() },
		newID:    func() string { return ulid.Make().String() },
		log:      log,
	}
}

// Trigger resolves and runs a ritual. The reply carries either a single
// text (plus buttons) or a pre-built message list for multi-step rituals.
func (s *Service) Trigger(ctx context.Context, req types.TriggerRequest) (*types.TriggerResponse, error) {
	if req.RitualID == "" {
		return nil, fmt.Errorf("ritual id is required")
	}

	ritual, err := s.registry.FindByID(ctx, req.RitualID)
	if err != nil {
		return nil, fmt.Errorf("resolve ritual %s: %w", req.RitualID, err)
	}

	url := req.Webhook
	if url == "" && ritual != nil {
		url = ritual.Webhook
	}
	if url != "" {
		return s.triggerWebhook(ctx, url, req, ritual)
	}

	buttons := req.Buttons
	if len(buttons) == 0 && ritual != nil {
		buttons = ritual.Buttons
	}

	switch req.RitualID {
	case "wakeup":
		return s.wakeupScript(req.RitualID), nil
	case "winddown":
		return s.winddownScript(ctx, req.RitualID, buttons)
	case "impulse":
		return s.impulseScript(req.RitualID), nil
	}
	return nil, fmt.Errorf("ritual %s has no webhook and no built-in script", req.RitualID)
}

// triggerWebhook forwards the trigger to the ritual's endpoint and folds
// its reply into a trigger response.
func (s *Service) triggerWebhook(ctx context.Context, url string, req types.TriggerRequest, ritual *types.Ritual) (*types.TriggerResponse, error) {
	payload := map[string]any{
		"ritualId": req.RitualID,
		"context":  req.Context,
		"tone":     req.Tone,
	}
	body, err := s.client.Post(ctx, url, payload)
	if err != nil {
		return nil, fmt.Errorf("trigger ritual %s: %w", req.RitualID, err)
	}

	var reply types.TriggerResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		// Plain-text endpoints are folded into a single reply.
		reply = types.TriggerResponse{OK: true, Text: string(body)}
	} else if !reply.OK && reply.Error != "" {
		return nil, fmt.Errorf("trigger ritual %s: %s", req.RitualID, reply.Error)
	}
	reply.OK = true
	if len(reply.Buttons) == 0 {
		if len(req.Buttons) > 0 {
			reply.Buttons = req.Buttons
		} else if ritual != nil {
			reply.Buttons = ritual.Buttons
		}
	}
	return &reply, nil
}

// wakeupScript is the morning sequence: greeting card, today's schedule,
// the urgent grid, and the send-off card.
func (s *Service) wakeupScript(ritualID string) *types.TriggerResponse {
	msgs := []types.Message{
		s.cardMessage(ritualID, &cards.Payload{Kind: cards.KindWakeup, Wakeup: &cards.Wakeup{
			Welcome: "Morning spark.",
			Quest:   "Set one clear move for today.",
			Quote:   "Breathe in and take the first step.",
		}}),
		s.cardMessage(ritualID, &cards.Payload{Kind: cards.KindTodayList}),
		s.cardMessage(ritualID, &cards.Payload{Kind: cards.KindUrgentGrid}),
		s.cardMessage(ritualID, &cards.Payload{Kind: cards.KindEnjoyDay}),
	}
	return &types.TriggerResponse{OK: true, Messages: msgs}
}

// winddownScript opens a fresh session: the intro card with its action
// buttons, then the first question of the chain.
func (s *Service) winddownScript(ctx context.Context, ritualID string, buttons []string) (*types.TriggerResponse, error) {
	sessionID := uuid.NewString()

	step, err := s.winddown.NextWinddownQuestion(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("winddown questions: %w", err)
	}
	if step.Done {
		return nil, fmt.Errorf("winddown questions: none configured")
	}

	intro := s.cardMessage(ritualID, &cards.Payload{Kind: cards.KindWinddownIntro})
	intro.Buttons = buttons

	question := s.cardMessage(ritualID, &cards.Payload{
		Kind: cards.KindQuestionSave,
		QuestionSave: &cards.QuestionSave{
			Prompt:    step.Prompt,
			Question:  step.Question,
			SessionID: sessionID,
			SaveTo:    cards.SaveTargetWinddown,
		},
	})
	question.Role = types.RoleAssistant

	return &types.TriggerResponse{OK: true, Messages: []types.Message{intro, question}}, nil
}

// impulseScript is the impulse-control checklist with its evaluation button.
func (s *Service) impulseScript(ritualID string) *types.TriggerResponse {
	msg := s.cardMessage(ritualID, &cards.Payload{
		Kind: cards.KindListSection,
		ListSection: &cards.ListSection{
			Title: "Impulse check",
			Sections: []cards.Section{
				{Header: "WAIT", Items: []string{
					"Pause for one breath.",
					"Name what you are about to do.",
				}},
				{Header: "CONSEQUENCES", Items: []string{
					"How will this feel in an hour?",
					"What does it cost tomorrow?",
				}},
				{Header: "BETTER ALTERNATIVES", Items: []string{
					"Drink a glass of water.",
					"Step outside for two minutes.",
				}},
			},
		},
	})
	return &types.TriggerResponse{OK: true, Messages: []types.Message{msg}}
}

func (s *Service) cardMessage(ritualID string, payload *cards.Payload) types.Message {
	return types.Message{
		ID:        s.newID(),
		Role:      types.RoleRitual,
		Timestamp: s.now(),
		Metadata:  payload,
		RitualID:  ritualID,
	}
}
