package store

import (
	"context"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/types"
)

// WinddownStep is the next question of a winddown session, or the terminal
// goodnight signal when Done is true.
type WinddownStep struct {
	Done     bool
	Question string
	Prompt   string
}

// Store defines the interface contract for all persistence operations.
type Store interface {
	ListMessages(ctx context.Context) ([]types.Message, error)
	AppendMessage(ctx context.Context, msg types.Message) error
	UpdateMessageMeta(ctx context.Context, id string, meta *cards.Payload) error
	UpdateMessageButtons(ctx context.Context, id string, buttons []string) error
	ClearMessages(ctx context.Context) error
	CountMessages(ctx context.Context) (int64, error)

	GetSettings(ctx context.Context) (*types.Settings, error)
	MergeSettings(ctx context.Context, patch types.SettingsPatch) error

	ListRituals(ctx context.Context) ([]types.Ritual, error)
	GetRitual(ctx context.Context, id string) (*types.Ritual, error)
	SaveRitual(ctx context.Context, r types.Ritual) error
	DeleteRitual(ctx context.Context, id string) error

	SaveMindNote(ctx context.Context, req types.AnswerRequest) error
	SaveWinddownAnswer(ctx context.Context, req types.AnswerRequest) error
	NextWinddownQuestion(ctx context.Context, sessionID string) (*WinddownStep, error)

	ListAppointments(ctx context.Context, date string) ([]types.Appointment, error)
	ListUrgentTodos(ctx context.Context) ([]types.UrgentTodo, error)

	Close() error
}
