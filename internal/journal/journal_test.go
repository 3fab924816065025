package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/store"
	"github.com/hyperengineering/companion/internal/types"
)

type fakeStorage struct {
	mindNotes []types.AnswerRequest
	answers   []types.AnswerRequest
	next      *store.WinddownStep
	err       error
}

func (f *fakeStorage) SaveMindNote(ctx context.Context, req types.AnswerRequest) error {
	if f.err != nil {
		return f.err
	}
	f.mindNotes = append(f.mindNotes, req)
	return nil
}

func (f *fakeStorage) SaveWinddownAnswer(ctx context.Context, req types.AnswerRequest) error {
	if f.err != nil {
		return f.err
	}
	f.answers = append(f.answers, req)
	return nil
}

func (f *fakeStorage) NextWinddownQuestion(ctx context.Context, sessionID string) (*store.WinddownStep, error) {
	return f.next, nil
}

func TestSave_MindNote(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewService(storage)

	resp, err := svc.Save(context.Background(), types.AnswerRequest{
		ID: "mind_1", Text: "a thought", CreatedAt: 1,
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Nil(t, resp.Message)
	assert.False(t, resp.Goodnight)
	require.Len(t, storage.mindNotes, 1)
	assert.Empty(t, storage.answers)
}

func TestSave_SessionAdvancesChain(t *testing.T) {
	storage := &fakeStorage{next: &store.WinddownStep{
		Question: "gratitude",
		Prompt:   "What are you grateful for tonight?",
	}}
	svc := NewService(storage)

	resp, err := svc.Save(context.Background(), types.AnswerRequest{
		ID: "a1", Text: "a fine day", SessionID: "sess-1", Question: "day_highlight", CreatedAt: 1,
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.False(t, resp.Goodnight)
	require.Len(t, storage.answers, 1)

	require.NotNil(t, resp.Message)
	q := resp.Message.Metadata.QuestionSave
	require.NotNil(t, q)
	assert.Equal(t, "gratitude", q.Question)
	assert.Equal(t, "What are you grateful for tonight?", q.Prompt)
	assert.Equal(t, "sess-1", q.SessionID)
	assert.Equal(t, cards.SaveTargetWinddown, q.SaveTo)
}

func TestSave_SessionComplete(t *testing.T) {
	storage := &fakeStorage{next: &store.WinddownStep{Done: true}}
	svc := NewService(storage)

	resp, err := svc.Save(context.Background(), types.AnswerRequest{
		ID: "a1", Text: "patience", SessionID: "sess-1", Question: "one_thing_learned", CreatedAt: 1,
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.True(t, resp.Goodnight)
	require.NotNil(t, resp.Message)
	assert.Equal(t, cards.KindGoodnight, resp.Message.CardKind())
}

func TestSave_StorageFailure(t *testing.T) {
	storage := &fakeStorage{err: errors.New("disk full")}
	svc := NewService(storage)

	_, err := svc.Save(context.Background(), types.AnswerRequest{ID: "m", Text: "x"})
	assert.Error(t, err)

	_, err = svc.Save(context.Background(), types.AnswerRequest{ID: "a", Text: "x", SessionID: "s"})
	assert.Error(t, err)
}
