package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/conorfennell/studynotes/internal/clock"
	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/sm2"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	updates map[string]sm2.Next
	calls   []string
	fail    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: make(map[string]sm2.Next)}
}

func (f *fakeStore) UpdateFlashcardSchedule(_ context.Context, userID, cardID string, next sm2.Next) error {
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, userID+"/"+cardID)
	f.updates[cardID] = next
	return nil
}

var t0 = time.Date(2025, 5, 4, 18, 0, 0, 0, time.UTC)

func card(id string) domain.Flashcard {
	return domain.Flashcard{ID: id, Front: "front " + id, Back: "back " + id, EaseFactor: sm2.DefaultEaseFactor, NextReview: t0}
}

func TestStartEmptyDeck(t *testing.T) {
	m := New(newFakeStore(), clock.Fixed(t0), "u1")
	err := m.Start(nil)
	assert.ErrorIs(t, err, ErrEmptyDeck)
	assert.Equal(t, Idle, m.State())

	err = m.Start([]domain.Flashcard{})
	assert.ErrorIs(t, err, ErrEmptyDeck)
}

func TestSingleCardCompletesOnFirstGrade(t *testing.T) {
	store := newFakeStore()
	m := New(store, clock.Fixed(t0), "u1")
	require.NoError(t, m.Start([]domain.Flashcard{card("a")}))

	res, err := m.Grade(context.Background(), sm2.Good)
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.True(t, res.SessionComplete)
	assert.Equal(t, Completed, m.State())

	rec, err := m.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CardsStudied)
	assert.Equal(t, 1, rec.CorrectAnswers)
	assert.Equal(t, domain.SessionFlashcards, rec.SessionType)
	assert.Equal(t, 0, rec.NotesReviewed)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, []string{"u1/a"}, store.calls)
}

func TestGradeSequence(t *testing.T) {
	store := newFakeStore()
	clk := clock.NewManual(t0)
	m := New(store, clk, "u1")
	require.NoError(t, m.Start([]domain.Flashcard{card("a"), card("b"), card("c")}))

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", cur.ID)

	clk.Advance(time.Minute)
	res, err := m.Grade(context.Background(), sm2.Perfect)
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.False(t, res.SessionComplete)
	assert.Equal(t, 1, res.Card.Repetitions)
	assert.Equal(t, t0.Add(time.Minute).AddDate(0, 0, 1), res.Card.NextReview)

	cur, err = m.Current()
	require.NoError(t, err)
	assert.Equal(t, "b", cur.ID)

	clk.Advance(time.Minute)
	_, err = m.Grade(context.Background(), sm2.Wrong)
	require.NoError(t, err)

	clk.Advance(90 * time.Second)
	res, err = m.Grade(context.Background(), sm2.Difficult)
	require.NoError(t, err)
	assert.True(t, res.SessionComplete)

	rec, err := m.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 3, rec.CardsStudied)
	assert.Equal(t, 2, rec.CorrectAnswers)
	// 3.5 minutes rounds half away from zero.
	assert.Equal(t, 4, rec.DurationMinutes)
	assert.Equal(t, t0.Add(210*time.Second), rec.CreatedAt)

	assert.Equal(t, []string{"u1/a", "u1/b", "u1/c"}, store.calls)
	assert.Equal(t, 0, store.updates["b"].Repetitions)

	// Finalize after completion is stable.
	again, err := m.Finalize()
	require.NoError(t, err)
	assert.Equal(t, rec, again)

	_, err = m.Grade(context.Background(), sm2.Good)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestCardsKeepCallerOrder(t *testing.T) {
	m := New(newFakeStore(), clock.Fixed(t0), "u1")
	deck := []domain.Flashcard{card("z"), card("a"), card("m")}
	deck[0].NextReview = t0
	deck[1].NextReview = t0.Add(-time.Hour)
	require.NoError(t, m.Start(deck))

	var seen []string
	for {
		cur, err := m.Current()
		if errors.Is(err, ErrNotActive) {
			break
		}
		seen = append(seen, cur.ID)
		_, err = m.Grade(context.Background(), sm2.Good)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"z", "a", "m"}, seen)
}

func TestInvalidGradeLeavesStateUnchanged(t *testing.T) {
	store := newFakeStore()
	m := New(store, clock.Fixed(t0), "u1")
	require.NoError(t, m.Start([]domain.Flashcard{card("a"), card("b")}))

	_, err := m.Grade(context.Background(), sm2.Quality(7))
	assert.ErrorIs(t, err, sm2.ErrInvalidGrade)
	assert.Equal(t, Progress{Position: 0, Total: 2}, m.Progress())
	assert.Empty(t, store.calls)

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", cur.ID)
}

func TestStoreFailureDoesNotAdvance(t *testing.T) {
	store := newFakeStore()
	store.fail = errors.New("disk full")
	m := New(store, clock.Fixed(t0), "u1")
	require.NoError(t, m.Start([]domain.Flashcard{card("a"), card("b")}))

	_, err := m.Grade(context.Background(), sm2.Good)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.fail)
	assert.Equal(t, Progress{Position: 0, Total: 2}, m.Progress())

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, 0, cur.Repetitions)

	// Retry succeeds once the store recovers.
	store.fail = nil
	res, err := m.Grade(context.Background(), sm2.Good)
	require.NoError(t, err)
	assert.True(t, res.Advanced)
}

func TestFinalizeEarly(t *testing.T) {
	clk := clock.NewManual(t0)
	m := New(newFakeStore(), clk, "u1")
	require.NoError(t, m.Start([]domain.Flashcard{card("a"), card("b"), card("c")}))

	_, err := m.Grade(context.Background(), sm2.Good)
	require.NoError(t, err)
	clk.Advance(20 * time.Second)

	rec, err := m.Finalize()
	require.NoError(t, err)
	assert.Equal(t, Completed, m.State())
	assert.Equal(t, 1, rec.CardsStudied)
	assert.Equal(t, 1, rec.CorrectAnswers)
	assert.Equal(t, 0, rec.DurationMinutes)
}

func TestAbandonKeepsGradedCards(t *testing.T) {
	store := newFakeStore()
	m := New(store, clock.Fixed(t0), "u1")
	require.NoError(t, m.Start([]domain.Flashcard{card("a"), card("b")}))

	_, err := m.Grade(context.Background(), sm2.Good)
	require.NoError(t, err)

	require.NoError(t, m.Abandon())
	assert.Equal(t, Idle, m.State())
	assert.Contains(t, store.updates, "a")

	_, err = m.Finalize()
	assert.ErrorIs(t, err, ErrNotActive)
	assert.ErrorIs(t, m.Abandon(), ErrNotActive)

	// A new run can start after abandoning.
	require.NoError(t, m.Start([]domain.Flashcard{card("b")}))
	assert.Equal(t, Progress{Total: 1}, m.Progress())
}

func TestIdleRejectsOperations(t *testing.T) {
	m := New(newFakeStore(), nil, "u1")
	_, err := m.Current()
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = m.Grade(context.Background(), sm2.Good)
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = m.Finalize()
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestStartWhileActive(t *testing.T) {
	m := New(newFakeStore(), clock.Fixed(t0), "u1")
	require.NoError(t, m.Start([]domain.Flashcard{card("a")}))
	assert.ErrorIs(t, m.Start([]domain.Flashcard{card("b")}), ErrAlreadyActive)

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", cur.ID)
}

func TestDurationMinutes(t *testing.T) {
	assert.Equal(t, 0, durationMinutes(t0, t0.Add(-time.Minute)))
	assert.Equal(t, 0, durationMinutes(t0, t0.Add(29*time.Second)))
	assert.Equal(t, 1, durationMinutes(t0, t0.Add(30*time.Second)))
	assert.Equal(t, 12, durationMinutes(t0, t0.Add(12*time.Minute+10*time.Second)))
}
