package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/types"
)

// tickerHandle owns the shared 1-second clock. Start and stop are exactly
// balanced: one goroutine at most, torn down as soon as no countdown card
// needs ticking.
type tickerHandle struct {
	mu      sync.Mutex
	stop    chan struct{}
	running bool
}

// pendingCountdowns reports whether any countdown card still needs the
// clock: idle or running cards count, completion-fired ones do not.
func (e *Engine) pendingCountdowns() bool {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.history.Snapshot() {
		c := countdownOf(m.Metadata)
		if c == nil {
			continue
		}
		if !c.Started() {
			return true
		}
		if !c.Expired(now) || !e.completed[m.ID] {
			return true
		}
	}
	return false
}

func countdownOf(p *cards.Payload) *cards.Countdown {
	if p == nil || p.Kind != cards.KindCountdown {
		return nil
	}
	return p.Countdown
}

// syncTicker reconciles the shared clock with history contents.
func (e *Engine) syncTicker() {
	want := e.pendingCountdowns()

	e.ticker.mu.Lock()
	defer e.ticker.mu.Unlock()

	switch {
	case want && !e.ticker.running:
		stop := make(chan struct{})
		e.ticker.stop = stop
		e.ticker.running = true
		go e.runTicker(stop)
	case !want && e.ticker.running:
		close(e.ticker.stop)
		e.ticker.running = false
	}
}

func (e *Engine) runTicker(stop chan struct{}) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			e.Tick(context.Background())
		}
	}
}

// Tick re-evaluates every countdown card against the current clock and
// fires due completions. Each completion fires exactly once per session no
// matter how many re-evaluations happen while the timer remains expired; a
// timer already expired when the process starts re-fires its effects, which
// is the accepted at-least-once semantics across restarts.
func (e *Engine) Tick(ctx context.Context) {
	now := e.now()
	for _, m := range e.history.Snapshot() {
		c := countdownOf(m.Metadata)
		if c == nil || !c.Expired(now) {
			continue
		}

		e.mu.Lock()
		fired := e.completed[m.ID]
		if !fired {
			e.completed[m.ID] = true
		}
		e.mu.Unlock()
		if fired {
			continue
		}

		e.append(ctx, e.assistantMessage("Timer complete: "+c.DisplayLabel()), types.EchoBroadcast)
		if c.Next != nil {
			e.applyTransition(ctx, m, c.Next)
		}
	}
	e.syncTicker()
}

// Resume restores countdown supervision after history is loaded from the
// store, firing any timers that expired while the process was down.
func (e *Engine) Resume(ctx context.Context) {
	e.Tick(ctx)
	e.syncTicker()
}
