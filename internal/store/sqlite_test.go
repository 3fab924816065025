package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMessages_AppendAndListOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, types.Message{ID: "b", Role: types.RoleAssistant, Text: "second", Timestamp: 200}))
	require.NoError(t, s.AppendMessage(ctx, types.Message{ID: "a", Role: types.RoleUser, Text: "first", Timestamp: 100}))
	require.NoError(t, s.AppendMessage(ctx, types.Message{ID: "c", Role: types.RoleUser, Text: "tie", Timestamp: 200}))

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].ID)
	// Equal timestamps keep insertion order.
	assert.Equal(t, "b", msgs[1].ID)
	assert.Equal(t, "c", msgs[2].ID)
}

func TestMessages_MetadataAndButtonsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := types.Message{
		ID: "m1", Role: types.RoleRitual, Timestamp: 1,
		RitualID: "winddown",
		Buttons:  []string{"Start winddown", "Not yet"},
		Metadata: &cards.Payload{
			Kind: cards.KindCountdown,
			Countdown: &cards.Countdown{
				Seconds: 300,
				Label:   "5-minute evaluation",
				Next:    &cards.Transition{Type: cards.TransitionWebhookPost},
			},
		},
	}
	require.NoError(t, s.AppendMessage(ctx, msg))

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got := msgs[0]
	assert.Equal(t, []string{"Start winddown", "Not yet"}, got.Buttons)
	require.NotNil(t, got.Metadata)
	require.NotNil(t, got.Metadata.Countdown)
	assert.Equal(t, 300, got.Metadata.Countdown.Seconds)
	require.NotNil(t, got.Metadata.Countdown.Next)
	assert.Equal(t, cards.TransitionWebhookPost, got.Metadata.Countdown.Next.Type)
}

func TestAppendMessage_DuplicateIDTolerated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, types.Message{ID: "x", Role: types.RoleUser, Text: "original", Timestamp: 1}))
	require.NoError(t, s.AppendMessage(ctx, types.Message{ID: "x", Role: types.RoleUser, Text: "duplicate", Timestamp: 2}))

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "original", msgs[0].Text)
}

func TestUpdateMessageMeta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, types.Message{
		ID: "c1", Role: types.RoleAssistant, Timestamp: 1,
		Metadata: &cards.Payload{Kind: cards.KindCountdown, Countdown: &cards.Countdown{Seconds: 60}},
	}))

	started := &cards.Payload{Kind: cards.KindCountdown, Countdown: &cards.Countdown{Seconds: 60, StartedAt: 12345}}
	require.NoError(t, s.UpdateMessageMeta(ctx, "c1", started))

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), msgs[0].Metadata.Countdown.StartedAt)

	assert.ErrorIs(t, s.UpdateMessageMeta(ctx, "missing", started), ErrNotFound)
}

func TestUpdateMessageButtons(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, types.Message{
		ID: "m1", Role: types.RoleRitual, Timestamp: 1, Buttons: []string{"a", "b"},
	}))
	require.NoError(t, s.UpdateMessageButtons(ctx, "m1", []string{}))

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs[0].Buttons)

	assert.ErrorIs(t, s.UpdateMessageButtons(ctx, "missing", nil), ErrNotFound)
}

func TestClearMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, types.Message{ID: "a", Role: types.RoleUser, Timestamp: 1}))
	require.NoError(t, s.ClearMessages(ctx))

	count, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSettings_SeededDefaults(t *testing.T) {
	s := newTestStore(t)

	settings, err := s.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Gentle", settings.Tone)
	assert.Equal(t, "dark", settings.Theme)
	assert.Empty(t, settings.FallbackWebhook)
	assert.Empty(t, settings.NotificationsWebhook)
}

func TestMergeSettings_PartialAndIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tone := "Snarky"
	hook := "https://hooks.example/fallback"
	require.NoError(t, s.MergeSettings(ctx, types.SettingsPatch{Tone: &tone, FallbackWebhook: &hook}))

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Snarky", got.Tone)
	assert.Equal(t, hook, got.FallbackWebhook)
	assert.Equal(t, "dark", got.Theme, "omitted field keeps stored value")

	// Same patch twice converges to the same state.
	require.NoError(t, s.MergeSettings(ctx, types.SettingsPatch{Tone: &tone, FallbackWebhook: &hook}))
	again, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	// A later partial patch touches only its own field.
	theme := "light"
	require.NoError(t, s.MergeSettings(ctx, types.SettingsPatch{Theme: &theme}))
	final, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Snarky", final.Tone)
	assert.Equal(t, "light", final.Theme)
}

func TestRituals_SeededAndCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rituals, err := s.ListRituals(ctx)
	require.NoError(t, err)
	require.Len(t, rituals, 3)

	winddown, err := s.GetRitual(ctx, "winddown")
	require.NoError(t, err)
	assert.Equal(t, "good night", winddown.Trigger.ChatKeyword)
	assert.Equal(t, []string{"Start winddown", "Not yet"}, winddown.Buttons)
	assert.True(t, winddown.Active)

	custom := types.Ritual{
		ID: "focus", Name: "Focus block", Active: true,
		Trigger: types.RitualTrigger{Type: types.TriggerChat, ChatKeyword: "focus"},
	}
	require.NoError(t, s.SaveRitual(ctx, custom))

	got, err := s.GetRitual(ctx, "focus")
	require.NoError(t, err)
	assert.Equal(t, "Focus block", got.Name)

	// Upsert by id.
	custom.Name = "Deep focus"
	require.NoError(t, s.SaveRitual(ctx, custom))
	got, err = s.GetRitual(ctx, "focus")
	require.NoError(t, err)
	assert.Equal(t, "Deep focus", got.Name)

	require.NoError(t, s.DeleteRitual(ctx, "focus"))
	_, err = s.GetRitual(ctx, "focus")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteRitual(ctx, "focus"), ErrNotFound)
}

func TestWinddownProgression(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := "sess-1"

	answer := func(question string) {
		require.NoError(t, s.SaveWinddownAnswer(ctx, types.AnswerRequest{
			Text: "an answer", SessionID: session, Question: question, CreatedAt: 1,
		}))
	}

	step, err := s.NextWinddownQuestion(ctx, session)
	require.NoError(t, err)
	assert.False(t, step.Done)
	assert.Equal(t, "day_highlight", step.Question)

	answer(step.Question)
	step, err = s.NextWinddownQuestion(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "gratitude", step.Question)

	answer(step.Question)
	step, err = s.NextWinddownQuestion(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "one_thing_learned", step.Question)
	assert.Equal(t, "What is one thing you have learned today?", step.Prompt)

	answer(step.Question)
	step, err = s.NextWinddownQuestion(ctx, session)
	require.NoError(t, err)
	assert.True(t, step.Done)

	// Sessions are independent.
	other, err := s.NextWinddownQuestion(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "day_highlight", other.Question)
}

func TestNextWinddownQuestion_OrdersNumerically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := "sess-long"

	// Positions past 9 must still sort after the single digits.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO winddown_questions (position, question, prompt) VALUES
			(4,  'tomorrow_plan', 'What is your plan for tomorrow?'),
			(10, 'final_thought', 'Any final thought before sleep?')
	`)
	require.NoError(t, err)

	want := []string{"day_highlight", "gratitude", "one_thing_learned", "tomorrow_plan", "final_thought"}
	for _, q := range want {
		step, err := s.NextWinddownQuestion(ctx, session)
		require.NoError(t, err)
		require.False(t, step.Done)
		assert.Equal(t, q, step.Question)
		require.NoError(t, s.SaveWinddownAnswer(ctx, types.AnswerRequest{
			Text: "an answer", SessionID: session, Question: step.Question, CreatedAt: 1,
		}))
	}

	step, err := s.NextWinddownQuestion(ctx, session)
	require.NoError(t, err)
	assert.True(t, step.Done)
}

func TestSaveMindNote_DuplicateIDTolerated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := types.AnswerRequest{ID: "mind_1", Text: "a thought", CreatedAt: 1}
	require.NoError(t, s.SaveMindNote(ctx, req))
	require.NoError(t, s.SaveMindNote(ctx, req))
}

func TestListAppointments_FiltersByDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (id, date, title, start, duration_min) VALUES
			('a1', '2026-08-31', 'Standup', '09:30', 15),
			('a2', '2026-08-31', 'Gym',     '07:00', 60),
			('a3', '2026-09-01', 'Dentist', '11:00', 30)
	`)
	require.NoError(t, err)

	appts, err := s.ListAppointments(ctx, "2026-08-31")
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, "Gym", appts[0].Title, "ordered by start time")
	assert.Equal(t, "Standup", appts[1].Title)

	empty, err := s.ListAppointments(ctx, "2026-12-24")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListUrgentTodos_Unfiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO urgent_todos (id, title, priority, done) VALUES
			('t1', 'Pay rent',  'high',   0),
			('t2', 'Old thing', 'medium', 1)
	`)
	require.NoError(t, err)

	todos, err := s.ListUrgentTodos(ctx)
	require.NoError(t, err)
	// Filtering and ordering are the renderer's job; the store returns all.
	assert.Len(t, todos, 2)
}
