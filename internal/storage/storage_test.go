package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studynotes/internal/clock"
	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/sm2"
)

var t0 = time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T, clk clock.Clock) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNotesAreScopedByUser(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, clock.Fixed(t0))

	note := &domain.Note{UserID: "alice", Title: "Cells", Content: "Mitochondria.", Tags: []string{"biology"}, DifficultyLevel: 2}
	require.NoError(t, db.InsertNote(ctx, note))
	require.NotEmpty(t, note.ID)

	got, err := db.GetNote(ctx, "alice", note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cells", got.Title)
	assert.Equal(t, []string{"biology"}, got.Tags)
	assert.True(t, got.CreatedAt.Equal(t0))

	_, err = db.GetNote(ctx, "bob", note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteNote(ctx, "bob", note.ID), ErrNotFound)

	notes, err := db.ListNotes(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestUpdateAndMarkNote(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(t0)
	db := openTestDB(t, clk)

	note := &domain.Note{UserID: "alice", Title: "Old", Content: "old"}
	require.NoError(t, db.InsertNote(ctx, note))

	clk.Advance(time.Hour)
	note.Title, note.Content, note.Tags, note.DifficultyLevel = "New", "new", []string{"a", "b"}, 4
	require.NoError(t, db.UpdateNoteContent(ctx, note))
	require.NoError(t, db.MarkNoteStudied(ctx, "alice", note.ID, clk.Now()))

	got, err := db.GetNote(ctx, "alice", note.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, 4, got.DifficultyLevel)
	assert.Equal(t, 1, got.StudyCount)
	require.NotNil(t, got.LastStudied)
	assert.True(t, got.LastStudied.Equal(t0.Add(time.Hour)))
	assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Hour)))
}

func TestInsertFlashcardsDefaults(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, clock.Fixed(t0))

	note := &domain.Note{UserID: "alice", Title: "T", Content: "C"}
	require.NoError(t, db.InsertNote(ctx, note))

	cards, err := db.InsertFlashcards(ctx, []domain.Flashcard{
		{UserID: "alice", NoteID: note.ID, Front: "Q1", Back: "A1", DifficultyLevel: 3},
		{UserID: "alice", NoteID: note.ID, Front: "Q2", Back: "A2", DifficultyLevel: 3},
	})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	for _, c := range cards {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, sm2.DefaultEaseFactor, c.EaseFactor)
		assert.Equal(t, 0, c.IntervalDays)
		assert.Equal(t, 0, c.Repetitions)
		assert.True(t, c.NextReview.Equal(t0))
	}

	byNote, err := db.FlashcardsByNote(ctx, "alice", note.ID)
	require.NoError(t, err)
	assert.Len(t, byNote, 2)
}

func TestInsertFlashcardsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, clock.Fixed(t0))

	// The second card violates the ease factor floor.
	_, err := db.InsertFlashcards(ctx, []domain.Flashcard{
		{UserID: "alice", Front: "ok", Back: "ok"},
		{UserID: "alice", Front: "bad", Back: "bad", EaseFactor: 0.5},
	})
	require.Error(t, err)

	cards, err := db.ListFlashcards(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestDueFlashcardsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, clock.Fixed(t0))

	_, err := db.InsertFlashcards(ctx, []domain.Flashcard{
		{UserID: "alice", Front: "later", Back: "x", NextReview: t0.Add(-time.Hour)},
		{UserID: "alice", Front: "oldest", Back: "x", NextReview: t0.AddDate(0, 0, -3)},
		{UserID: "alice", Front: "future", Back: "x", NextReview: t0.AddDate(0, 0, 2)},
		{UserID: "alice", Front: "middle", Back: "x", NextReview: t0.AddDate(0, 0, -1)},
		{UserID: "bob", Front: "other user", Back: "x", NextReview: t0.AddDate(0, 0, -9)},
	})
	require.NoError(t, err)

	due, err := db.DueFlashcards(ctx, "alice", t0, 20)
	require.NoError(t, err)
	var fronts []string
	for _, c := range due {
		fronts = append(fronts, c.Front)
	}
	assert.Equal(t, []string{"oldest", "middle", "later"}, fronts)

	due, err = db.DueFlashcards(ctx, "alice", t0, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	n, err := db.CountDueFlashcards(ctx, "alice", t0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpdateFlashcardSchedule(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, clock.Fixed(t0))

	cards, err := db.InsertFlashcards(ctx, []domain.Flashcard{{UserID: "alice", Front: "Q", Back: "A"}})
	require.NoError(t, err)
	id := cards[0].ID

	next, err := sm2.Schedule(sm2.NewState(), sm2.Good, t0)
	require.NoError(t, err)
	require.NoError(t, db.UpdateFlashcardSchedule(ctx, "alice", id, next))

	got, err := db.GetFlashcard(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Repetitions)
	assert.Equal(t, 1, got.IntervalDays)
	assert.True(t, got.NextReview.Equal(t0.AddDate(0, 0, 1)))
	assert.Equal(t, "Q", got.Front)

	err = db.UpdateFlashcardSchedule(ctx, "bob", id, next)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.DeleteFlashcard(ctx, "alice", id))
	assert.ErrorIs(t, db.DeleteFlashcard(ctx, "alice", id), ErrNotFound)
}

func TestDeleteNoteCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, clock.Fixed(t0))

	note := &domain.Note{UserID: "alice", Title: "T", Content: "C"}
	require.NoError(t, db.InsertNote(ctx, note))
	_, err := db.InsertFlashcards(ctx, []domain.Flashcard{{UserID: "alice", NoteID: note.ID, Front: "Q", Back: "A"}})
	require.NoError(t, err)
	require.NoError(t, db.InsertSummary(ctx, &domain.NoteSummary{NoteID: note.ID, UserID: "alice", SummaryText: "s", KeyPoints: []string{"k"}}))

	summary, err := db.LatestSummary(ctx, "alice", note.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, summary.KeyPoints)

	require.NoError(t, db.DeleteNote(ctx, "alice", note.ID))
	cards, err := db.ListFlashcards(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, cards)
	_, err = db.LatestSummary(ctx, "alice", note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStudySessions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, clock.Fixed(t0))

	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertStudySession(ctx, &domain.StudySession{
			UserID:          "alice",
			SessionType:     domain.SessionFlashcards,
			DurationMinutes: i + 1,
			CardsStudied:    4,
			CorrectAnswers:  i,
			CreatedAt:       t0.Add(time.Duration(i) * time.Hour),
		}))
	}

	recent, err := db.RecentStudySessions(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 3, recent[0].DurationMinutes)
	assert.Equal(t, 2, recent[1].DurationMinutes)

	all, err := db.ListStudySessions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// correct_answers may never exceed cards_studied.
	err = db.InsertStudySession(ctx, &domain.StudySession{UserID: "alice", SessionType: domain.SessionFlashcards, CardsStudied: 1, CorrectAnswers: 2})
	assert.Error(t, err)
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, clock.Fixed(t0))

	id, err := db.InsertSource(ctx, "alice", "/notes", domain.SourceLocal)
	require.NoError(t, err)

	_, err = db.InsertSource(ctx, "alice", "/notes", domain.SourceLocal)
	assert.Error(t, err, "duplicate path for the same user")

	s, err := db.FindSourceByPath(ctx, "alice", "/notes")
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.Nil(t, s.LastScanned)

	require.NoError(t, db.UpdateSourceLastScanned(ctx, "alice", id, t0))
	all, err := db.GetAllSources(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].LastScanned)
	assert.True(t, all[0].LastScanned.Equal(t0))

	note := &domain.Note{UserID: "alice", Title: "T", Content: "C", SourceID: id, SourcePath: "a.md"}
	require.NoError(t, db.InsertNote(ctx, note))
	bySource, err := db.NotesBySource(ctx, "alice", id)
	require.NoError(t, err)
	assert.Len(t, bySource, 1)

	require.NoError(t, db.DeleteSource(ctx, "alice", id))
	_, err = db.GetNote(ctx, "alice", note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.FindSourceByPath(ctx, "alice", "/notes")
	assert.ErrorIs(t, err, ErrNotFound)
}
