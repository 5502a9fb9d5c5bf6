package domain

import "time"

// SessionType is the kind of study activity a session recorded.
type SessionType string

const (
	SessionFlashcards SessionType = "flashcards"
	SessionNotes      SessionType = "notes"
	SessionSummary    SessionType = "summary"
)

// Valid reports whether t is one of the known session types.
func (t SessionType) Valid() bool {
	switch t {
	case SessionFlashcards, SessionNotes, SessionSummary:
		return true
	}
	return false
}

// StudySession is the immutable record of one finished study run.
// CorrectAnswers never exceeds CardsStudied.
type StudySession struct {
	ID              string      `json:"id,omitempty"`
	UserID          string      `json:"user_id,omitempty"`
	SessionType     SessionType `json:"session_type"`
	DurationMinutes int         `json:"duration_minutes"`
	CardsStudied    int         `json:"cards_studied"`
	CorrectAnswers  int         `json:"correct_answers"`
	NotesReviewed   int         `json:"notes_reviewed"`
	CreatedAt       time.Time   `json:"created_at"`
}

// StudyStats is derived from a user's notes, flashcards and sessions.
// StreakDays counts distinct active days in the trailing 30-day window.
type StudyStats struct {
	TotalNotes        int     `json:"total_notes"`
	TotalFlashcards   int     `json:"total_flashcards"`
	TotalStudyTime    int     `json:"total_study_time"`
	StreakDays        int     `json:"streak_days"`
	AverageDifficulty float64 `json:"average_difficulty"`
}
