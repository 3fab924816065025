// Package engine owns the conversation state machine: card-carrying
// history, scripted chain transitions, live countdowns, and input dispatch.
// Everything is cooperative and event-driven; persistence is fire-and-forget
// and the in-memory history is the source of truth for the active session.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/types"
)

// Persister is the subset of the message store the engine writes through.
type Persister interface {
	AppendMessage(ctx context.Context, msg types.Message) error
	UpdateMessageMeta(ctx context.Context, id string, meta *cards.Payload) error
	UpdateMessageButtons(ctx context.Context, id string, buttons []string) error
	ClearMessages(ctx context.Context) error
}

// SettingsSource supplies the current user settings.
type SettingsSource interface {
	GetSettings(ctx context.Context) (*types.Settings, error)
}

// Trigger starts a ritual and returns its scripted messages.
type Trigger interface {
	Trigger(ctx context.Context, req types.TriggerRequest) (*types.TriggerResponse, error)
}

// AnswerSink saves a questionSave answer and reports what to show next.
type AnswerSink interface {
	Save(ctx context.Context, req types.AnswerRequest) (types.AnswerResponse, error)
}

// Notifier posts JSON payloads to an external webhook.
type Notifier interface {
	Post(ctx context.Context, url string, payload any) ([]byte, error)
}

// FallbackFunc produces the default conversational reply.
type FallbackFunc func(ctx context.Context, req types.FallbackRequest) (string, error)

// RitualLookup resolves configured rituals for dispatching.
type RitualLookup interface {
	FindByKeyword(ctx context.Context, keyword string) (*types.Ritual, error)
	FindByID(ctx context.Context, id string) (*types.Ritual, error)
}

// GoodnightState tracks whether the goodnight card has been injected into
// the current chat. ClearChat resets the latch.
type GoodnightState int

const (
	GoodnightNotShown GoodnightState = iota
	GoodnightShowing
	GoodnightShown
)

// Engine wires the history container to its collaborators.
type Engine struct {
	history  *History
	store    Persister
	settings SettingsSource
	rituals  RitualLookup
	trigger  Trigger
	answers  AnswerSink
	notify   Notifier
	fallback FallbackFunc

	contextWindow int

	now   func() int64 // epoch ms
	newID func() string

	mu         sync.Mutex
	goodnight  GoodnightState
	completed  map[string]bool // countdown ids whose completion already fired
	saveStates map[string]cards.SaveState

	ticker tickerHandle

	log *slog.Logger
}

// Options configures optional engine collaborators.
type Options struct {
	ContextWindow int
	Now           func() int64
	NewID         func() string
	Logger        *slog.Logger
}

// New creates an engine over the given history and collaborators.
func New(h *History, store Persister, settings SettingsSource, rituals RitualLookup,
	trigger Trigger, answers AnswerSink, notify Notifier, fb FallbackFunc, opts Options) *Engine {

	e := &Engine{
		history:       h,
		store:         store,
		settings:      settings,
		rituals:       rituals,
		trigger:       trigger,
		answers:       answers,
		notify:        notify,
		fallback:      fb,
		contextWindow: opts.ContextWindow,
		now:           opts.Now,
		newID:         opts.NewID,
		completed:     map[string]bool{},
		saveStates:    map[string]cards.SaveState{},
		log:           opts.Logger,
	}
	if e.contextWindow <= 0 {
		e.contextWindow = 10
	}
	if e.now == nil {
		e.now = func() int64 { return time.Now().UnixMilli() }
	}
	if e.newID == nil {
		e.newID = func() string { return ulid.Make().String() }
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// History exposes the owned state container.
func (e *Engine) History() *History {
	return e.history
}

// GoodnightStatus reports the injection latch state.
func (e *Engine) GoodnightStatus() GoodnightState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.goodnight
}

// SaveState returns the card-local save lifecycle for a questionSave card.
func (e *Engine) SaveState(id string) cards.SaveState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.saveStates[id]; ok {
		return st
	}
	return cards.SaveIdle
}

func (e *Engine) setSaveState(id string, st cards.SaveState) {
	e.mu.Lock()
	e.saveStates[id] = st
	e.mu.Unlock()
}

// append adds a message to the in-memory history and persists it
// best-effort: the append always happens first and a persistence failure is
// swallowed.
func (e *Engine) append(ctx context.Context, msg types.Message, echo types.EchoMode) {
	if !e.history.Append(msg, echo) {
		return
	}
	e.persist(ctx, msg)
	e.syncTicker()
}

// persist writes through to the store without blocking state updates.
func (e *Engine) persist(ctx context.Context, msg types.Message) {
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.store.AppendMessage(pctx, msg); err != nil {
			e.log.Debug("message persistence failed", "id", msg.ID, "error", err)
		}
	}()
}

// Append adds an externally built message to the conversation, backfilling
// id and timestamp, and persists it best-effort. Duplicate ids are dropped.
func (e *Engine) Append(ctx context.Context, msg types.Message, echo types.EchoMode) types.Message {
	if msg.ID == "" {
		msg.ID = e.newID()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = e.now()
	}
	if echo == "" {
		echo = types.EchoBroadcast
	}
	e.append(ctx, msg, echo)
	return msg
}

// UpdateMessage applies the sanctioned in-place mutations to a stored
// message: metadata rewrite and button replacement. Other fields are never
// touched.
func (e *Engine) UpdateMessage(ctx context.Context, req types.UpdateRequest) (types.Message, bool) {
	updated, ok := e.history.Update(req.ID, func(m *types.Message) {
		if req.Metadata != nil {
			m.Metadata = req.Metadata
		}
		if req.Buttons != nil {
			m.Buttons = *req.Buttons
		}
	})
	if !ok {
		return types.Message{}, false
	}

	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if req.Metadata != nil {
			if err := e.store.UpdateMessageMeta(pctx, req.ID, req.Metadata); err != nil {
				e.log.Debug("metadata persistence failed", "id", req.ID, "error", err)
			}
		}
		if req.Buttons != nil {
			if err := e.store.UpdateMessageButtons(pctx, req.ID, *req.Buttons); err != nil {
				e.log.Debug("button persistence failed", "id", req.ID, "error", err)
			}
		}
	}()

	e.syncTicker()
	return updated, true
}

// assistantMessage builds a plain assistant text message.
func (e *Engine) assistantMessage(text string) types.Message {
	return types.Message{
		ID:        e.newID(),
		Role:      types.RoleAssistant,
		Text:      text,
		Timestamp: e.now(),
	}
}

// ShowGoodnight injects the de-duplicated goodnight card. The latch allows
// a single in-flight injection; once a card exists in history the latch
// just advances to Shown.
func (e *Engine) ShowGoodnight(ctx context.Context) {
	e.mu.Lock()
	if e.goodnight != GoodnightNotShown {
		e.mu.Unlock()
		return
	}
	e.goodnight = GoodnightShowing
	e.mu.Unlock()

	if e.history.ContainsKind(cards.KindGoodnight) {
		e.finishGoodnight()
		return
	}

	msg := types.Message{
		ID:        e.newID(),
		Role:      types.RoleAssistant,
		Timestamp: e.now(),
		Metadata:  &cards.Payload{Kind: cards.KindGoodnight},
	}
	e.append(ctx, msg, types.EchoBroadcast)
	e.finishGoodnight()
}

// MarkGoodnightShown latches the state without injecting, used when a
// server-provided goodnight card was already placed into history.
func (e *Engine) MarkGoodnightShown() {
	e.mu.Lock()
	e.goodnight = GoodnightShown
	e.mu.Unlock()
}

func (e *Engine) finishGoodnight() {
	e.mu.Lock()
	e.goodnight = GoodnightShown
	e.mu.Unlock()
}

// ClearChat bulk-clears history and persisted messages, and resets all
// session-local card state.
func (e *Engine) ClearChat(ctx context.Context) error {
	e.history.Clear()
	e.mu.Lock()
	e.goodnight = GoodnightNotShown
	e.completed = map[string]bool{}
	e.saveStates = map[string]cards.SaveState{}
	e.mu.Unlock()
	e.syncTicker()
	return e.store.ClearMessages(ctx)
}

// StartCountdown rewrites the countdown's metadata in place with the start
// instant, preserving its transition descriptor, and persists the update.
func (e *Engine) StartCountdown(ctx context.Context, id string) (types.Message, bool) {
	started := e.now()
	updated, ok := e.history.Update(id, func(m *types.Message) {
		if m.Metadata == nil || m.Metadata.Kind != cards.KindCountdown || m.Metadata.Countdown == nil {
			return
		}
		if m.Metadata.Countdown.Started() {
			return
		}
		c := *m.Metadata.Countdown
		c.StartedAt = started
		m.Metadata = &cards.Payload{Kind: cards.KindCountdown, Countdown: &c}
	})
	if !ok || updated.Metadata == nil || updated.Metadata.Countdown == nil || !updated.Metadata.Countdown.Started() {
		return types.Message{}, false
	}

	meta := updated.Metadata
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.store.UpdateMessageMeta(pctx, id, meta); err != nil {
			e.log.Debug("countdown metadata persistence failed", "id", id, "error", err)
		}
	}()

	e.syncTicker()
	return updated, true
}

// ClearButtons removes a ritual message's buttons once its action starts.
func (e *Engine) ClearButtons(ctx context.Context, id string) bool {
	_, ok := e.history.Update(id, func(m *types.Message) {
		m.Buttons = []string{}
	})
	if !ok {
		return false
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.store.UpdateMessageButtons(pctx, id, []string{}); err != nil {
			e.log.Debug("button clear persistence failed", "id", id, "error", err)
		}
	}()
	return true
}

// EvaluateImpulse handles the listSection action button: inject a running
// 5-minute countdown whose completion posts the canned evaluation prompt to
// the notifications webhook.
func (e *Engine) EvaluateImpulse(ctx context.Context) types.Message {
	started := e.now()
	msg := types.Message{
		ID:        e.newID(),
		Role:      types.RoleAssistant,
		Timestamp: started,
		Metadata: &cards.Payload{
			Kind: cards.KindCountdown,
			Countdown: &cards.Countdown{
				Seconds:   300,
				StartedAt: started,
				Label:     "5-minute evaluation",
				Next: &cards.Transition{
					Type:    cards.TransitionWebhookPost,
					Payload: []byte(`{"text":"How do you feel about your impulse now?"}`),
				},
			},
		},
	}
	e.append(ctx, msg, types.EchoBroadcast)
	return msg
}
