package cards

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the card payload union. The wire tag is "demo" for
// compatibility with the persisted history format.
type Kind string

const (
	KindWakeup        Kind = "wakeupCard"
	KindListSection   Kind = "listSection"
	KindEnjoyDay      Kind = "enjoyDayCard"
	KindUrgentGrid    Kind = "urgentGrid"
	KindWinddownIntro Kind = "winddownIntro"
	KindGoodnight     Kind = "goodnightCard"
	KindTodayList     Kind = "todayList"
	KindCountdown     Kind = "countdown"
	KindQuestionInput Kind = "questionInput"
	KindQuestionSave  Kind = "questionSave"
	KindEmotion       Kind = "emotionCard"

	// legacyCountdown60 is the fixed-60-second predecessor of KindCountdown.
	// Accepted on decode, never produced on encode.
	legacyCountdown60 = "countdown60"
)

// Save endpoint paths carried by questionSave cards in their saveTo field.
const (
	SaveTargetMind     = "/api/mind"
	SaveTargetWinddown = "/api/winddown/answer"
)

// TransitionType enumerates what happens when a card's terminal event fires.
type TransitionType string

const (
	TransitionQuestionSave  TransitionType = "questionSave"
	TransitionWebhookPost   TransitionType = "webhookPost"
	TransitionWinddownIntro TransitionType = "winddownIntro"
	TransitionGoodnight     TransitionType = "goodnight"
)

// Transition is an opaque descriptor attached to a countdown or question
// card, consumed exactly once when that card's terminal event fires. The
// chain controller interprets it; cards never execute it themselves.
type Transition struct {
	Type      TransitionType  `json:"type"`
	Prompt    string          `json:"prompt,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SaveTo    string          `json:"saveTo,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Question  string          `json:"question,omitempty"`
	Next      *Transition     `json:"next,omitempty"`
}

// Wakeup carries the morning greeting card fields.
type Wakeup struct {
	Welcome string `json:"welcome,omitempty"`
	Quest   string `json:"quest,omitempty"`
	Quote   string `json:"quote,omitempty"`
}

// Section is one grouped bullet block inside a listSection card.
type Section struct {
	Header string   `json:"header,omitempty"`
	Items  []string `json:"items"`
}

// ListSection carries grouped bullet sections plus the impulse being
// evaluated. Its action button starts a 300-second evaluation countdown.
type ListSection struct {
	Title          string    `json:"title,omitempty"`
	Sections       []Section `json:"sections,omitempty"`
	CurrentImpulse string    `json:"currentImpulse,omitempty"`
}

// Countdown carries a timer definition. StartedAt is zero until the timer
// is started; rewriting it in place is one of the two sanctioned message
// mutations.
type Countdown struct {
	Seconds   int         `json:"seconds"`
	StartedAt int64       `json:"startedAt,omitempty"` // epoch ms, 0 = not started
	Label     string      `json:"label,omitempty"`
	Next      *Transition `json:"next,omitempty"`
}

// QuestionSave carries a prompt whose answer is persisted on save.
type QuestionSave struct {
	Prompt    string      `json:"prompt,omitempty"`
	SaveTo    string      `json:"saveTo,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Question  string      `json:"question,omitempty"`
	Next      *Transition `json:"next,omitempty"`
}

// Payload is the card metadata union. Exactly one variant pointer is set,
// matching Kind; tag-only cards (enjoyDay, urgentGrid, goodnight, todayList,
// questionInput, winddownIntro) carry no extra fields.
type Payload struct {
	Kind         Kind
	Wakeup       *Wakeup
	ListSection  *ListSection
	Countdown    *Countdown
	QuestionSave *QuestionSave
	EmotionID    string
}

// wirePayload is the flat persisted shape: the demo tag plus the union of
// all variant fields.
type wirePayload struct {
	Demo Kind `json:"demo"`

	// wakeupCard
	Welcome string `json:"welcome,omitempty"`
	Quest   string `json:"quest,omitempty"`
	Quote   string `json:"quote,omitempty"`

	// listSection
	Title          string    `json:"title,omitempty"`
	Sections       []Section `json:"sections,omitempty"`
	CurrentImpulse string    `json:"currentImpulse,omitempty"`

	// countdown
	Seconds   int   `json:"seconds,omitempty"`
	StartedAt int64 `json:"startedAt,omitempty"`
	Label     string `json:"label,omitempty"`

	// questionSave
	Prompt    string `json:"prompt,omitempty"`
	SaveTo    string `json:"saveTo,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Question  string `json:"question,omitempty"`

	// countdown / questionSave
	Next *Transition `json:"next,omitempty"`

	// emotionCard
	EmotionID string `json:"emotionId,omitempty"`
}

// MarshalJSON flattens the active variant under the demo tag.
func (p Payload) MarshalJSON() ([]byte, error) {
	w := wirePayload{Demo: p.Kind, EmotionID: p.EmotionID}
	switch p.Kind {
	case KindWakeup:
		if p.Wakeup != nil {
			w.Welcome, w.Quest, w.Quote = p.Wakeup.Welcome, p.Wakeup.Quest, p.Wakeup.Quote
		}
	case KindListSection:
		if p.ListSection != nil {
			w.Title, w.Sections, w.CurrentImpulse = p.ListSection.Title, p.ListSection.Sections, p.ListSection.CurrentImpulse
		}
	case KindCountdown:
		if p.Countdown != nil {
			w.Seconds, w.StartedAt, w.Label, w.Next = p.Countdown.Seconds, p.Countdown.StartedAt, p.Countdown.Label, p.Countdown.Next
		}
	case KindQuestionSave:
		if p.QuestionSave != nil {
			w.Prompt, w.SaveTo, w.SessionID, w.Question, w.Next = p.QuestionSave.Prompt, p.QuestionSave.SaveTo, p.QuestionSave.SessionID, p.QuestionSave.Question, p.QuestionSave.Next
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat wire shape into the union, normalizing the
// legacy countdown60 tag to a generic 60-second countdown.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Demo == "" {
		return fmt.Errorf("card payload missing demo tag")
	}
	if w.Demo == legacyCountdown60 {
		w.Demo = KindCountdown
		if w.Seconds == 0 {
			w.Seconds = 60
		}
	}
	*p = Payload{Kind: w.Demo, EmotionID: w.EmotionID}
	switch w.Demo {
	case KindWakeup:
		p.Wakeup = &Wakeup{Welcome: w.Welcome, Quest: w.Quest, Quote: w.Quote}
	case KindListSection:
		p.ListSection = &ListSection{Title: w.Title, Sections: w.Sections, CurrentImpulse: w.CurrentImpulse}
	case KindCountdown:
		p.Countdown = &Countdown{Seconds: w.Seconds, StartedAt: w.StartedAt, Label: w.Label, Next: w.Next}
	case KindQuestionSave:
		p.QuestionSave = &QuestionSave{Prompt: w.Prompt, SaveTo: w.SaveTo, SessionID: w.SessionID, Question: w.Question, Next: w.Next}
	}
	return nil
}

// Started reports whether the countdown has been started.
func (c Countdown) Started() bool { return c.StartedAt > 0 }

// Elapsed returns whole seconds elapsed since start, clamped at zero.
func (c Countdown) Elapsed(nowMS int64) int {
	if !c.Started() {
		return 0
	}
	e := int((nowMS - c.StartedAt) / 1000)
	if e < 0 {
		return 0
	}
	return e
}

// Remaining returns remaining whole seconds, clamped at zero.
func (c Countdown) Remaining(nowMS int64) int {
	if !c.Started() {
		return c.Seconds
	}
	left := c.Seconds - c.Elapsed(nowMS)
	if left < 0 {
		return 0
	}
	return left
}

// Fraction returns remaining/total in [0,1] for progress display.
func (c Countdown) Fraction(nowMS int64) float64 {
	total := c.Seconds
	if total < 1 {
		total = 1
	}
	return float64(c.Remaining(nowMS)) / float64(total)
}

// Expired reports whether a started countdown has reached zero.
func (c Countdown) Expired(nowMS int64) bool {
	return c.Started() && c.Remaining(nowMS) == 0
}

// DisplayLabel returns the configured label or a duration-derived default.
func (c Countdown) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	if c.Seconds == 60 {
		return "1-minute timer"
	}
	mins := (c.Seconds + 59) / 60
	return fmt.Sprintf("%d-minute timer", mins)
}
