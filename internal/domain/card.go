package domain

import "time"

// Flashcard is a single front/back prompt together with its SM-2 schedule.
// Front and Back are never changed by scheduling.
type Flashcard struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	NoteID          string    `json:"note_id,omitempty"`
	Front           string    `json:"front_text"`
	Back            string    `json:"back_text"`
	DifficultyLevel int       `json:"difficulty_level"`
	EaseFactor      float64   `json:"ease_factor"`
	IntervalDays    int       `json:"interval_days"`
	Repetitions     int       `json:"repetitions"`
	NextReview      time.Time `json:"next_review"`
	// ContentHash is set for cards written inside a note file and is empty
	// for generated cards.
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsDue reports whether the card should be reviewed at now.
func (f Flashcard) IsDue(now time.Time) bool {
	return !f.NextReview.After(now)
}

// GeneratedCard is the front/back/difficulty triple produced by a generator.
type GeneratedCard struct {
	Front      string `json:"front"`
	Back       string `json:"back"`
	Difficulty int    `json:"difficulty"`
}
