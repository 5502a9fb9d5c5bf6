package study

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studynotes/internal/clock"
	"github.com/conorfennell/studynotes/internal/config"
	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/generator"
	"github.com/conorfennell/studynotes/internal/importer"
	"github.com/conorfennell/studynotes/internal/session"
	"github.com/conorfennell/studynotes/internal/sm2"
	"github.com/conorfennell/studynotes/internal/storage"
)

var t0 = time.Date(2025, 4, 7, 18, 0, 0, 0, time.UTC)

const lecture = "Mitochondria produce most of the cell's ATP. " +
	"Ribosomes translate messenger RNA into proteins. The nucleus stores genetic material. " +
	"Lysosomes break down waste inside the cell."

func newService(t *testing.T, mutate func(*config.StudyConfig)) (*Service, *clock.Manual) {
	t.Helper()
	return openService(t, filepath.Join(t.TempDir(), "study.db"), mutate)
}

func openService(t *testing.T, dbPath string, mutate func(*config.StudyConfig)) (*Service, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	db, err := storage.Open(dbPath, storage.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default().Study
	if mutate != nil {
		mutate(&cfg)
	}
	imp := importer.New(db, t.TempDir(), clk, nil)
	return New(db, generator.Placeholder{}, imp, cfg, clk, nil), clk
}

// seedCards adds a note for userID and generates n cards from it.
func seedCards(t *testing.T, svc *Service, userID string, n int) (*domain.Note, []domain.Flashcard) {
	t.Helper()
	ctx := context.Background()
	note, err := svc.AddNote(ctx, userID, NoteInput{Title: "Cells", Content: lecture})
	require.NoError(t, err)
	cards, err := svc.GenerateFlashcards(ctx, userID, note.ID, n, generator.Medium)
	require.NoError(t, err)
	require.Len(t, cards, n)
	return note, cards
}

func TestGenerateFlashcards(t *testing.T) {
	svc, _ := newService(t, nil)
	note, cards := seedCards(t, svc, "alice", 3)

	for _, c := range cards {
		assert.Equal(t, note.ID, c.NoteID)
		assert.Equal(t, sm2.DefaultEaseFactor, c.EaseFactor)
		assert.Zero(t, c.IntervalDays)
		assert.Zero(t, c.Repetitions)
		assert.True(t, c.NextReview.Equal(t0))
		assert.Equal(t, 3, c.DifficultyLevel)
	}

	due, err := svc.DueFlashcards(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, due, 3)

	_, err = svc.GenerateFlashcards(context.Background(), "bob", note.ID, 3, generator.Easy)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.GenerateFlashcards(context.Background(), "alice", note.ID, 3, "impossible")
	assert.ErrorIs(t, err, generator.ErrInvalidRequest)
}

func TestAddNote(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	note, err := svc.AddNote(ctx, "alice", NoteInput{Title: "Biology", Content: "Biology is the science of life."})
	require.NoError(t, err)
	assert.Equal(t, []string{"science", "biology"}, note.Tags)
	assert.NotEmpty(t, note.ContentHash)

	_, err = svc.AddNote(ctx, "alice", NoteInput{Title: "", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	notes, err := svc.Notes(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestSummarize(t *testing.T) {
	svc, _ := newService(t, nil)
	note, _ := seedCards(t, svc, "alice", 1)

	sum, err := svc.Summarize(context.Background(), "alice", note.ID, generator.StyleOutline, 0)
	require.NoError(t, err)
	assert.Equal(t, note.ID, sum.NoteID)
	assert.Len(t, sum.KeyPoints, 3)
	assert.Equal(t, "placeholder", sum.Model)
}

func TestStudyRunToCompletion(t *testing.T) {
	ctx := context.Background()
	svc, clk := newService(t, nil)
	note, _ := seedCards(t, svc, "alice", 3)

	view, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "active", view.State)
	require.NotNil(t, view.Card)
	require.NotNil(t, view.StartedAt)
	assert.True(t, view.StartedAt.Equal(t0))
	assert.Equal(t, 3, view.Progress.Total)

	_, err = svc.Start(ctx, "alice")
	assert.ErrorIs(t, err, session.ErrAlreadyActive)

	grades := []sm2.Quality{sm2.Perfect, sm2.Wrong, sm2.Good}
	var last GradeOutcome
	for _, q := range grades {
		clk.Advance(time.Minute)
		last, err = svc.Grade(ctx, "alice", q)
		require.NoError(t, err)
	}
	require.True(t, last.SessionComplete)
	require.NotNil(t, last.Session)
	assert.Equal(t, 3, last.Session.CardsStudied)
	assert.Equal(t, 2, last.Session.CorrectAnswers)
	assert.Equal(t, 3, last.Session.DurationMinutes)
	assert.Zero(t, last.Session.NotesReviewed)
	assert.Equal(t, domain.SessionFlashcards, last.Session.SessionType)

	assert.Equal(t, "idle", svc.Current("alice").State)
	_, err = svc.Grade(ctx, "alice", sm2.Good)
	assert.ErrorIs(t, err, session.ErrNotActive)

	sessions, err := svc.RecentSessions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, last.Session.ID, sessions[0].ID)

	notes, err := svc.Notes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, notes[0].StudyCount)
	require.NotNil(t, notes[0].LastStudied)

	assert.Nil(t, svc.Current("alice").StartedAt)

	// Every card is now scheduled for tomorrow.
	_, err = svc.Start(ctx, "alice")
	assert.ErrorIs(t, err, session.ErrEmptyDeck)
	due, err := svc.CountDue(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, due)

	st, err := svc.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalNotes)
	assert.Equal(t, 3, st.TotalFlashcards)
	assert.Equal(t, 3, st.TotalStudyTime)
	assert.Equal(t, 1, st.StreakDays)
	assert.Equal(t, float64(note.DifficultyLevel), st.AverageDifficulty)
}

func TestCountDueIgnoresDeckLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, func(c *config.StudyConfig) { c.DeckLimit = 2 })
	_, cards := seedCards(t, svc, "alice", 3)

	deck, err := svc.DueFlashcards(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, deck, 2)

	due, err := svc.CountDue(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, due)

	card, err := svc.Flashcard(ctx, "alice", cards[0].ID)
	require.NoError(t, err)
	assert.Equal(t, cards[0].Front, card.Front)

	_, err = svc.Flashcard(ctx, "bob", cards[0].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnrecordedRunIsRecordedBeforeRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "study.db")
	svc, clk := openService(t, dbPath, nil)
	note, _ := seedCards(t, svc, "alice", 1)

	side, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { side.Close() })
	_, err = side.Exec(`CREATE TRIGGER reject_sessions BEFORE INSERT ON study_sessions
		BEGIN SELECT RAISE(ABORT, 'session insert rejected'); END`)
	require.NoError(t, err)

	_, err = svc.Start(ctx, "alice")
	require.NoError(t, err)
	clk.Advance(7 * time.Minute)
	out, err := svc.Grade(ctx, "alice", sm2.Perfect)
	require.Error(t, err)
	assert.True(t, out.SessionComplete, "the grade is reported with the error")
	assert.Equal(t, 1, out.GradeResult.Card.Repetitions)
	assert.Nil(t, out.Session)
	assert.Equal(t, "completed", svc.Current("alice").State)

	// Still failing: nothing new starts and the finished run is kept.
	_, err = svc.Start(ctx, "alice")
	require.Error(t, err)
	assert.Equal(t, "completed", svc.Current("alice").State)

	_, err = side.Exec(`DROP TRIGGER reject_sessions`)
	require.NoError(t, err)
	_, err = svc.GenerateFlashcards(ctx, "alice", note.ID, 1, generator.Medium)
	require.NoError(t, err)

	view, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "active", view.State)

	sessions, err := svc.RecentSessions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].CardsStudied)
	assert.Equal(t, 1, sessions[0].CorrectAnswers)
	assert.Equal(t, 7, sessions[0].DurationMinutes)
}

func TestUnrecordedRunIsRecordedOnExit(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "study.db")
	svc, _ := openService(t, dbPath, nil)
	seedCards(t, svc, "alice", 1)

	side, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { side.Close() })
	_, err = side.Exec(`CREATE TRIGGER reject_sessions BEFORE INSERT ON study_sessions
		BEGIN SELECT RAISE(ABORT, 'session insert rejected'); END`)
	require.NoError(t, err)

	_, err = svc.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Grade(ctx, "alice", sm2.Good)
	require.Error(t, err)

	_, err = side.Exec(`DROP TRIGGER reject_sessions`)
	require.NoError(t, err)
	rec, err := svc.Exit(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.CardsStudied)
	assert.Equal(t, "idle", svc.Current("alice").State)
}

func TestInvalidGradeLeavesRun(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	seedCards(t, svc, "alice", 2)

	before, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Grade(ctx, "alice", sm2.Quality(7))
	assert.ErrorIs(t, err, sm2.ErrInvalidGrade)
	assert.Equal(t, before, svc.Current("alice"))
}

func TestExitFinalizes(t *testing.T) {
	ctx := context.Background()
	svc, clk := newService(t, nil)
	seedCards(t, svc, "alice", 3)

	_, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)
	_, err = svc.Grade(ctx, "alice", sm2.Perfect)
	require.NoError(t, err)

	rec, err := svc.Exit(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.CardsStudied)
	assert.Equal(t, 1, rec.CorrectAnswers)
	assert.Equal(t, 5, rec.DurationMinutes)

	_, err = svc.Exit(ctx, "alice")
	assert.ErrorIs(t, err, session.ErrNotActive)
}

func TestExitWithoutFinalizeDiscards(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, func(c *config.StudyConfig) { c.FinalizeOnExit = false })
	seedCards(t, svc, "alice", 3)

	_, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Grade(ctx, "alice", sm2.Perfect)
	require.NoError(t, err)

	rec, err := svc.Exit(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, rec)

	sessions, err := svc.RecentSessions(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// The graded card keeps its new schedule.
	due, err := svc.DueFlashcards(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	seedCards(t, svc, "alice", 2)

	assert.ErrorIs(t, svc.Abandon("alice"), session.ErrNotActive)
	_, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Abandon("alice"))

	_, err = svc.Grade(ctx, "alice", sm2.Good)
	assert.ErrorIs(t, err, session.ErrNotActive)
	sessions, err := svc.RecentSessions(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRunsArePerUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, func(c *config.StudyConfig) { c.DeckLimit = 2 })
	seedCards(t, svc, "alice", 3)

	view, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Progress.Total, "deck limit")

	_, err = svc.Start(ctx, "bob")
	assert.ErrorIs(t, err, session.ErrEmptyDeck)
	assert.Equal(t, "idle", svc.Current("bob").State)
	assert.Equal(t, "active", svc.Current("alice").State)
}

func TestSourcesAndSync(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.md"), []byte("# Go\n\nQ: Zero value of int?\nA: 0\n"), 0o644))

	src, err := svc.AddSource(ctx, "alice", dir)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, src.Type)

	_, err = svc.AddSource(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	results, err := svc.Sync(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].CardsAdded)

	cards, err := svc.Flashcards(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.NoError(t, svc.DeleteFlashcard(ctx, "alice", cards[0].ID))

	require.NoError(t, svc.RemoveSource(ctx, "alice", src.ID))
	notes, err := svc.Notes(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, notes)
}
