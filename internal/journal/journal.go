// Package journal persists questionSave answers and drives the winddown
// question chain toward its goodnight terminal.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/store"
	"github.com/hyperengineering/companion/internal/types"
)

// Storage is the subset of the store the journal writes through.
type Storage interface {
	SaveMindNote(ctx context.Context, req types.AnswerRequest) error
	SaveWinddownAnswer(ctx context.Context, req types.AnswerRequest) error
	NextWinddownQuestion(ctx context.Context, sessionID string) (*store.WinddownStep, error)
}

// Service files answers and decides what the chat shows next.
type Service struct {
	store Storage

	now   func() int64
	newID func() string
}

// NewService creates a journal service.
func NewService(storage Storage) *Service {
	return &Service{
		store: storage,
		now:   func() int64 { return time.Now().UnixMilli() },
		newID: func() string { return ulid.Make().String() },
	}
}

// Save stores the answer. Answers without a session are plain mind notes.
// Session answers advance the winddown chain: the reply carries the next
// question card, or the goodnight card plus terminal signal once every
// question is answered.
func (s *Service) Save(ctx context.Context, req types.AnswerRequest) (types.AnswerResponse, error) {
	if req.SessionID == "" {
		if err := s.store.SaveMindNote(ctx, req); err != nil {
			return types.AnswerResponse{}, fmt.Errorf("save mind note: %w", err)
		}
		return types.AnswerResponse{OK: true}, nil
	}

	if err := s.store.SaveWinddownAnswer(ctx, req); err != nil {
		return types.AnswerResponse{}, fmt.Errorf("save winddown answer: %w", err)
	}

	step, err := s.store.NextWinddownQuestion(ctx, req.SessionID)
	if err != nil {
		return types.AnswerResponse{}, fmt.Errorf("next winddown question: %w", err)
	}

	if step.Done {
		goodnight := types.Message{
			ID:        s.newID(),
			Role:      types.RoleAssistant,
			Timestamp: s.now(),
			Metadata:  &cards.Payload{Kind: cards.KindGoodnight},
		}
		return types.AnswerResponse{OK: true, Goodnight: true, Message: &goodnight}, nil
	}

	next := types.Message{
		ID:        s.newID(),
		Role:      types.RoleAssistant,
		Timestamp: s.now(),
		Metadata: &cards.Payload{
			Kind: cards.KindQuestionSave,
			QuestionSave: &cards.QuestionSave{
				Prompt:    step.Prompt,
				Question:  step.Question,
				SessionID: req.SessionID,
				SaveTo:    cards.SaveTargetWinddown,
			},
		},
	}
	return types.AnswerResponse{OK: true, Message: &next}, nil
}
