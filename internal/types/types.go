package types

import (
	"encoding/json"

	"github.com/hyperengineering/companion/internal/cards"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleRitual    Role = "ritual"
)

// EchoMode tells the message store whether an appended message should be
// rebroadcast to connected viewers. It never affects persistence.
type EchoMode string

const (
	EchoBroadcast EchoMode = "broadcast"
	EchoLocal     EchoMode = "local"
)

// Message is a single entry in the conversation history.
//
// Messages are immutable once persisted except for two in-place mutations:
// clearing Buttons after a ritual action starts, and rewriting a countdown's
// Metadata when the timer is started.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Timestamp int64          `json:"timestamp"` // epoch milliseconds
	Metadata  *cards.Payload `json:"metadata,omitempty"`
	Buttons   []string       `json:"buttons,omitempty"`
	RitualID  string         `json:"ritualId,omitempty"`
	EmotionID string         `json:"emotionId,omitempty"`
}

// HasCard reports whether the message carries a card payload.
func (m Message) HasCard() bool {
	return m.Metadata != nil && m.Metadata.Kind != ""
}

// CardKind returns the card discriminator, or empty for plain text messages.
func (m Message) CardKind() cards.Kind {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata.Kind
}

// Settings is the single-user configuration row.
type Settings struct {
	Tone                 string `json:"tone"`
	FallbackWebhook      string `json:"fallbackWebhook"`
	NotificationsWebhook string `json:"notificationsWebhook"`
	Theme                string `json:"theme"`
}

// SettingsPatch carries a partial settings update. Nil fields are left
// unchanged by the merge (upsert-with-coalesce semantics).
type SettingsPatch struct {
	Tone                 *string `json:"tone,omitempty"`
	FallbackWebhook      *string `json:"fallbackWebhook,omitempty"`
	NotificationsWebhook *string `json:"notificationsWebhook,omitempty"`
	Theme                *string `json:"theme,omitempty"`
}

// TriggerType distinguishes how a ritual is started.
type TriggerType string

const (
	TriggerSchedule TriggerType = "schedule"
	TriggerChat     TriggerType = "chat"
)

// RitualTrigger describes when a ritual fires.
type RitualTrigger struct {
	Type        TriggerType `json:"type"`
	Time        string      `json:"time,omitempty"`
	Repeat      string      `json:"repeat,omitempty"`
	ChatKeyword string      `json:"chatKeyword,omitempty"`
}

// Ritual is a named scripted flow configured by the user.
type Ritual struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Webhook string        `json:"webhook,omitempty"`
	Trigger RitualTrigger `json:"trigger"`
	Buttons []string      `json:"buttons,omitempty"`
	Active  bool          `json:"active"`
}

// Appointment is a date-scoped schedule entry (read-only for the chat).
type Appointment struct {
	Title       string `json:"title"`
	Start       string `json:"start"` // HH:MM
	DurationMin int    `json:"durationMin,omitempty"`
}

// UrgentTodo is an entry in the shared urgent-todo collection.
type UrgentTodo struct {
	Title    string `json:"title"`
	Priority string `json:"priority"` // high | medium | low
	Done     bool   `json:"done"`
}

// SendRequest is the dispatcher entry point payload.
type SendRequest struct {
	Text string `json:"text"`
}

// SendResponse returns every message the dispatcher appended for this turn.
type SendResponse struct {
	OK       bool      `json:"ok"`
	Messages []Message `json:"messages"`
}

// TriggerRequest asks the ritual-trigger proxy to start a ritual.
type TriggerRequest struct {
	RitualID string    `json:"ritualId"`
	Context  []Message `json:"context,omitempty"`
	Tone     string    `json:"tone,omitempty"`
	Webhook  string    `json:"webhook,omitempty"`
	Buttons  []string  `json:"buttons,omitempty"`
}

// TriggerResponse is the ritual-trigger proxy reply. Either a single Text
// reply or a pre-built Messages list for multi-step rituals.
type TriggerResponse struct {
	OK       bool      `json:"ok"`
	Text     string    `json:"text,omitempty"`
	Buttons  []string  `json:"buttons,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// FallbackRequest is the default conversational path payload.
type FallbackRequest struct {
	Text         string    `json:"text"`
	LastMessages []Message `json:"lastMessages,omitempty"`
	Tone         string    `json:"tone,omitempty"`
	URL          string    `json:"url,omitempty"`
}

// FallbackResponse is the fallback proxy reply.
type FallbackResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// AnswerRequest saves an answer from a questionSave card.
type AnswerRequest struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
	SessionID string `json:"sessionId,omitempty"`
	Question  string `json:"question,omitempty"`
}

// AnswerResponse acknowledges a saved answer. Message, when present, is a
// ready-made reply to inject; Goodnight signals the terminal step.
type AnswerResponse struct {
	OK        bool     `json:"ok"`
	Message   *Message `json:"message,omitempty"`
	Goodnight bool     `json:"goodnight,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// AppendRequest is the message persistence payload.
type AppendRequest struct {
	Message
	Echo EchoMode `json:"echo,omitempty"`
}

// UpdateRequest rewrites parts of a persisted message in place.
type UpdateRequest struct {
	ID       string         `json:"id"`
	Metadata *cards.Payload `json:"metadata,omitempty"`
	Buttons  *[]string      `json:"buttons,omitempty"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	MessageCount int64  `json:"message_count"`
	RitualCount  int64  `json:"ritual_count"`
}

// MarshalJSON ensures a nil Buttons slice marshals as [] not null.
func (r TriggerResponse) MarshalJSON() ([]byte, error) {
	if r.OK && r.Buttons == nil {
		r.Buttons = []string{}
	}
	type Alias TriggerResponse
	return json.Marshal(Alias(r))
}

// MarshalJSON ensures a nil Messages slice marshals as [] not null.
func (r SendResponse) MarshalJSON() ([]byte, error) {
	if r.Messages == nil {
		r.Messages = []Message{}
	}
	type Alias SendResponse
	return json.Marshal(Alias(r))
}
