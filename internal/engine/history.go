package engine

import (
	"sort"
	"sync"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/types"
)

// EventType classifies history change notifications.
type EventType string

const (
	EventAppend EventType = "append"
	EventUpdate EventType = "update"
	EventClear  EventType = "clear"
)

// Event describes a single history change. Echo controls whether the change
// is rebroadcast to connected viewers.
type Event struct {
	Type    EventType
	Message types.Message
	Echo    types.EchoMode
}

// History is the single owned conversation state container. Components
// never mutate the message list directly; they go through Append/Update and
// subscribers are notified on every change.
type History struct {
	mu   sync.RWMutex
	msgs []types.Message
	subs []func(Event)
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Load replaces the in-memory log with persisted messages, re-sorting by
// timestamp then stored order. Subscribers are not notified.
func (h *History) Load(msgs []types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = make([]types.Message, len(msgs))
	copy(h.msgs, msgs)
	sort.SliceStable(h.msgs, func(i, j int) bool {
		return h.msgs[i].Timestamp < h.msgs[j].Timestamp
	})
}

// Subscribe registers a change listener. Listeners run synchronously on the
// mutating goroutine and must not call back into History.
func (h *History) Subscribe(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, fn)
}

func (h *History) notify(ev Event) {
	for _, fn := range h.subs {
		fn(ev)
	}
}

// Append adds a message unless its id is already present. Returns false on
// duplicate ids; the log keeps insertion order for equal timestamps.
func (h *History) Append(msg types.Message, echo types.EchoMode) bool {
	h.mu.Lock()
	for _, m := range h.msgs {
		if m.ID == msg.ID {
			h.mu.Unlock()
			return false
		}
	}
	h.msgs = append(h.msgs, msg)
	subs := h.subs
	h.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Type: EventAppend, Message: msg, Echo: echo})
	}
	return true
}

// Update mutates a message in place via fn. Returns false when the id is
// unknown. Only the two sanctioned mutations (button clearing, countdown
// metadata rewrite) should use this.
func (h *History) Update(id string, fn func(*types.Message)) (types.Message, bool) {
	h.mu.Lock()
	idx := -1
	for i := range h.msgs {
		if h.msgs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.mu.Unlock()
		return types.Message{}, false
	}
	fn(&h.msgs[idx])
	updated := h.msgs[idx]
	subs := h.subs
	h.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Type: EventUpdate, Message: updated, Echo: types.EchoBroadcast})
	}
	return updated, true
}

// Clear drops the whole in-memory log.
func (h *History) Clear() {
	h.mu.Lock()
	h.msgs = nil
	subs := h.subs
	h.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Type: EventClear})
	}
}

// Snapshot returns a copy of the full ordered log.
func (h *History) Snapshot() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// LastN returns a copy of the trailing n messages.
func (h *History) LastN(n int) []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n > len(h.msgs) {
		n = len(h.msgs)
	}
	out := make([]types.Message, n)
	copy(out, h.msgs[len(h.msgs)-n:])
	return out
}

// Get returns a message by id.
func (h *History) Get(id string) (types.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return types.Message{}, false
}

// ContainsKind reports whether any message carries a card of the given kind.
func (h *History) ContainsKind(kind cards.Kind) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.msgs {
		if m.CardKind() == kind {
			return true
		}
	}
	return false
}

// RenderList returns the display view of the history: every message, except
// that only the chronologically last goodnight card survives. Earlier
// duplicates are suppressed, never deleted.
func (h *History) RenderList() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	lastGoodnight := -1
	for i := len(h.msgs) - 1; i >= 0; i-- {
		if h.msgs[i].CardKind() == cards.KindGoodnight {
			lastGoodnight = i
			break
		}
	}

	out := make([]types.Message, 0, len(h.msgs))
	for i, m := range h.msgs {
		if m.CardKind() == cards.KindGoodnight && i != lastGoodnight {
			continue
		}
		out = append(out, m)
	}
	return out
}
