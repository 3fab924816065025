package cards

import (
	"fmt"
	"sort"
)

// SaveState is the card-local lifecycle of a questionSave answer.
type SaveState string

const (
	SaveIdle   SaveState = "idle"
	SaveSaving SaveState = "saving"
	SaveSaved  SaveState = "saved"
	SaveError  SaveState = "error"
)

// UIState is the per-card local state the renderer folds in. It is never
// persisted.
type UIState struct {
	Input     string
	SaveState SaveState
	Completed bool
}

// TodoItem is the renderer's view of an urgent todo.
type TodoItem struct {
	Title    string
	Priority string
	Done     bool
}

// TaskItem is the renderer's view of a date-scoped schedule entry.
type TaskItem struct {
	Title       string
	Start       string
	DurationMin int
}

// Env supplies the externally-loaded collections some cards reflect.
// A nil TodayTasks slice means the schedule is still loading.
type Env struct {
	NowMS       int64
	UrgentTodos []TodoItem
	TodayTasks  []TaskItem
	TasksLoaded bool
}

// Row is one display line of a card view.
type Row struct {
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// Control is an interactive affordance offered by a card.
type Control struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// View is the renderer output: a pure description of what a card shows.
type View struct {
	Kind     Kind      `json:"kind"`
	Title    string    `json:"title,omitempty"`
	Subtitle string    `json:"subtitle,omitempty"`
	Note     string    `json:"note,omitempty"`
	Rows     []Row     `json:"rows,omitempty"`
	Controls []Control `json:"controls,omitempty"`
	Progress *float64  `json:"progress,omitempty"`
	Status   string    `json:"status,omitempty"`
}

// priorityRank orders urgent todos; unknown priorities sort last.
func priorityRank(p string) int {
	switch p {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 9
	}
}

// SortUrgent filters out completed todos and orders the rest by completion
// then priority rank. The input slice is not modified.
func SortUrgent(items []TodoItem) []TodoItem {
	out := make([]TodoItem, 0, len(items))
	for _, it := range items {
		if !it.Done {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Done != out[j].Done {
			return !out[i].Done
		}
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	return out
}

// Render maps a card payload to its view. It is a pure function of the
// payload, the clock, and card-local UI state; business transitions are the
// chain controller's job, so views only describe controls, never effects.
func Render(p *Payload, env Env, ui UIState) View {
	if p == nil {
		return View{}
	}
	switch p.Kind {
	case KindWakeup:
		w := p.Wakeup
		if w == nil {
			w = &Wakeup{}
		}
		v := View{Kind: KindWakeup, Title: w.Welcome, Subtitle: w.Quest, Note: w.Quote}
		if v.Title == "" {
			v.Title = "Morning spark."
		}
		if v.Subtitle == "" {
			v.Subtitle = "Set one clear move for today."
		}
		if v.Note == "" {
			v.Note = "Breathe in and take the first step."
		}
		return v

	case KindListSection:
		ls := p.ListSection
		if ls == nil {
			ls = &ListSection{}
		}
		v := View{Kind: KindListSection, Title: ls.Title}
		if v.Title == "" {
			v.Title = "List"
		}
		if ls.CurrentImpulse != "" {
			v.Subtitle = "Impulse: " + ls.CurrentImpulse
		}
		total := 0
		for _, sec := range ls.Sections {
			for _, item := range sec.Items {
				v.Rows = append(v.Rows, Row{Label: item, Tag: sec.Header})
			}
			total += len(sec.Items)
		}
		v.Note = fmt.Sprintf("%d items", total)
		v.Controls = []Control{{ID: "evaluate", Label: "I need to evaluate."}}
		return v

	case KindEnjoyDay:
		return View{
			Kind:     KindEnjoyDay,
			Title:    "Enjoy your day!",
			Subtitle: "I'll be here when you need me.",
		}

	case KindUrgentGrid:
		v := View{Kind: KindUrgentGrid, Title: "Urgent Todos"}
		for _, it := range SortUrgent(env.UrgentTodos) {
			v.Rows = append(v.Rows, Row{Label: it.Title, Tag: it.Priority})
		}
		v.Note = fmt.Sprintf("%d items", len(v.Rows))
		return v

	case KindWinddownIntro:
		return View{
			Kind:     KindWinddownIntro,
			Title:    "It's time to start your winddown.",
			Subtitle: "Shut down blue lights, and take sleeping supplements.",
		}

	case KindGoodnight:
		return View{
			Kind:     KindGoodnight,
			Title:    "Good night",
			Subtitle: "You finished your winddown. Keep lights low, keep phone away, and rest well.",
			Note:     "I'm here in the morning. Sleep well.",
		}

	case KindTodayList:
		v := View{Kind: KindTodayList, Title: "Today's Tasks"}
		if !env.TasksLoaded {
			v.Status = "loading"
			return v
		}
		if len(env.TodayTasks) == 0 {
			v.Status = "empty"
			v.Note = "No tasks scheduled today."
			return v
		}
		for _, t := range env.TodayTasks {
			detail := t.Start
			if t.DurationMin > 0 {
				detail = fmt.Sprintf("%s · %dm", t.Start, t.DurationMin)
			}
			v.Rows = append(v.Rows, Row{Label: t.Title, Detail: detail})
		}
		v.Note = fmt.Sprintf("%d items", len(v.Rows))
		return v

	case KindCountdown:
		c := p.Countdown
		if c == nil {
			c = &Countdown{Seconds: 60}
		}
		v := View{Kind: KindCountdown, Title: c.DisplayLabel()}
		frac := c.Fraction(env.NowMS)
		v.Progress = &frac
		switch {
		case !c.Started():
			v.Status = "idle"
			v.Note = "Not started"
			v.Controls = []Control{{ID: "start", Label: "Start"}}
		case c.Expired(env.NowMS) || ui.Completed:
			v.Status = "completed"
			v.Note = "Completed"
		default:
			v.Status = "running"
			v.Note = fmt.Sprintf("%ds left", c.Remaining(env.NowMS))
		}
		return v

	case KindQuestionInput:
		return View{
			Kind:     KindQuestionInput,
			Title:    "Ask a question",
			Controls: []Control{{ID: "send", Label: "Send"}},
		}

	case KindQuestionSave:
		q := p.QuestionSave
		if q == nil {
			q = &QuestionSave{}
		}
		v := View{Kind: KindQuestionSave, Title: q.Prompt}
		if v.Title == "" {
			v.Title = "What is on your mind right now?"
		}
		st := ui.SaveState
		if st == "" {
			st = SaveIdle
		}
		v.Status = string(st)
		switch st {
		case SaveSaved:
			v.Note = "Saved"
		case SaveError:
			v.Note = "Save failed. Please try again."
			v.Controls = []Control{{ID: "save", Label: "Save"}}
		case SaveSaving:
			v.Controls = []Control{{ID: "save", Label: "Saving…"}}
		default:
			v.Controls = []Control{{ID: "save", Label: "Save"}}
		}
		return v

	case KindEmotion:
		return View{Kind: KindEmotion, Title: p.EmotionID}
	}
	return View{Kind: p.Kind}
}
