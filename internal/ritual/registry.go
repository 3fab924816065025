// Package ritual resolves and runs the configured scripted flows.
package ritual

import (
	"context"

	"github.com/hyperengineering/companion/internal/types"
	"github.com/hyperengineering/companion/internal/validation"
)

// Lister supplies the configured rituals.
type Lister interface {
	ListRituals(ctx context.Context) ([]types.Ritual, error)
}

// Registry looks up rituals by id and chat keyword.
type Registry struct {
	store Lister
}

// NewRegistry creates a registry over the ritual store.
func NewRegistry(store Lister) *Registry {
	return &Registry{store: store}
}

// FindByKeyword returns the active chat-triggered ritual whose keyword
// exactly equals content, or nil when none matches.
func (r *Registry) FindByKeyword(ctx context.Context, content string) (*types.Ritual, error) {
	rituals, err := r.store.ListRituals(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rituals {
		rit := rituals[i]
		if !rit.Active || rit.Trigger.Type != types.TriggerChat {
			continue
		}
		if rit.Trigger.ChatKeyword != "" && rit.Trigger.ChatKeyword == content {
			return &rit, nil
		}
	}
	return nil, nil
}

// FindByID returns the ritual with the given id, or nil when unknown.
func (r *Registry) FindByID(ctx context.Context, id string) (*types.Ritual, error) {
	rituals, err := r.store.ListRituals(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rituals {
		if rituals[i].ID == id {
			return &rituals[i], nil
		}
	}
	return nil, nil
}

// Validate checks a ritual configuration before it is saved. Rejections
// happen here, before any store or network call.
func Validate(r types.Ritual) []validation.ValidationError {
	var c validation.Collector
	c.Add(validation.ValidateRequired("id", r.ID))
	c.Add(validation.ValidateRequired("name", r.Name))
	c.Add(validation.ValidateMaxLength("name", r.Name, 100))
	c.Add(validation.ValidateWebhookURL("webhook", r.Webhook))
	switch r.Trigger.Type {
	case types.TriggerChat:
		c.Add(validation.ValidateChatKeyword("trigger.chatKeyword", r.Trigger.ChatKeyword))
	case types.TriggerSchedule:
		c.Add(validation.ValidateRequired("trigger.time", r.Trigger.Time))
	default:
		c.Add(&validation.ValidationError{Field: "trigger.type", Message: "must be schedule or chat"})
	}
	return c.Errors()
}
