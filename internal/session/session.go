// Package session drives one study run over an ordered deck of flashcards.
//
// A Manager moves Idle -> Active -> Completed. Each grade is scheduled and
// persisted immediately, so abandoning a run never undoes graded cards.
// A Manager is not safe for concurrent use; callers serialize grades.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/studynotes/internal/clock"
	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/sm2"
)

var (
	ErrEmptyDeck     = errors.New("session: no cards to study")
	ErrNotActive     = errors.New("session: no active study run")
	ErrAlreadyActive = errors.New("session: study run already in progress")
)

// State is the lifecycle position of a Manager.
type State int

const (
	Idle State = iota
	Active
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CardStore persists the schedule of a graded card.
type CardStore interface {
	UpdateFlashcardSchedule(ctx context.Context, userID, cardID string, next sm2.Next) error
}

// GradeResult reports what a grade did to the run.
type GradeResult struct {
	Advanced        bool             `json:"advanced"`
	SessionComplete bool             `json:"session_complete"`
	Card            domain.Flashcard `json:"card"`
}

// Progress is a snapshot of the run counters.
type Progress struct {
	Position       int `json:"position"`
	Total          int `json:"total"`
	CardsStudied   int `json:"cards_studied"`
	CorrectAnswers int `json:"correct_answers"`
}

// Manager sequences a deck, one grade per card.
type Manager struct {
	store  CardStore
	clock  clock.Clock
	userID string

	state          State
	cards          []domain.Flashcard
	cursor         int
	startedAt      time.Time
	cardsStudied   int
	correctAnswers int
	record         *domain.StudySession
}

// New returns an idle Manager acting for userID.
func New(store CardStore, clk clock.Clock, userID string) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{store: store, clock: clk, userID: userID}
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return m.state }

// StartedAt returns when the current run started.
func (m *Manager) StartedAt() time.Time { return m.startedAt }

// Start begins a run over cards in the given order.
func (m *Manager) Start(cards []domain.Flashcard) error {
	if m.state == Active {
		return ErrAlreadyActive
	}
	if len(cards) == 0 {
		return ErrEmptyDeck
	}
	m.cards = append([]domain.Flashcard(nil), cards...)
	m.cursor = 0
	m.cardsStudied = 0
	m.correctAnswers = 0
	m.record = nil
	m.startedAt = m.clock.Now()
	m.state = Active
	return nil
}

// Current returns the card awaiting a grade.
func (m *Manager) Current() (domain.Flashcard, error) {
	if m.state != Active {
		return domain.Flashcard{}, ErrNotActive
	}
	return m.cards[m.cursor], nil
}

// Progress returns the counters of the current or last run.
func (m *Manager) Progress() Progress {
	return Progress{
		Position:       m.cursor,
		Total:          len(m.cards),
		CardsStudied:   m.cardsStudied,
		CorrectAnswers: m.correctAnswers,
	}
}

// Grade schedules the current card with q, persists it and moves on. If the
// store fails the run is left exactly as it was.
func (m *Manager) Grade(ctx context.Context, q sm2.Quality) (GradeResult, error) {
	if m.state != Active {
		return GradeResult{}, ErrNotActive
	}
	card := m.cards[m.cursor]
	now := m.clock.Now()

	next, err := sm2.Schedule(sm2.State{
		EaseFactor:   card.EaseFactor,
		IntervalDays: card.IntervalDays,
		Repetitions:  card.Repetitions,
	}, q, now)
	if err != nil {
		return GradeResult{}, err
	}
	if err := m.store.UpdateFlashcardSchedule(ctx, m.userID, card.ID, next); err != nil {
		return GradeResult{}, fmt.Errorf("saving schedule for card %s: %w", card.ID, err)
	}

	card.EaseFactor = next.EaseFactor
	card.IntervalDays = next.IntervalDays
	card.Repetitions = next.Repetitions
	card.NextReview = next.NextReview
	card.UpdatedAt = now
	m.cards[m.cursor] = card

	m.cardsStudied++
	if q.Correct() {
		m.correctAnswers++
	}

	if m.cursor < len(m.cards)-1 {
		m.cursor++
		return GradeResult{Advanced: true, Card: card}, nil
	}
	m.complete(now)
	return GradeResult{SessionComplete: true, Card: card}, nil
}

// Finalize returns the session record. Called while Active it ends the run
// early; after the deck is exhausted it returns the record built then.
func (m *Manager) Finalize() (domain.StudySession, error) {
	switch m.state {
	case Active:
		m.complete(m.clock.Now())
		return *m.record, nil
	case Completed:
		return *m.record, nil
	}
	return domain.StudySession{}, ErrNotActive
}

// Abandon discards an active run without a record. Cards already graded
// keep their new schedule.
func (m *Manager) Abandon() error {
	if m.state != Active {
		return ErrNotActive
	}
	m.state = Idle
	m.cards = nil
	m.cursor = 0
	m.record = nil
	return nil
}

func (m *Manager) complete(now time.Time) {
	m.record = &domain.StudySession{
		UserID:          m.userID,
		SessionType:     domain.SessionFlashcards,
		DurationMinutes: durationMinutes(m.startedAt, now),
		CardsStudied:    m.cardsStudied,
		CorrectAnswers:  m.correctAnswers,
		NotesReviewed:   0,
		CreatedAt:       now,
	}
	m.state = Completed
}

// durationMinutes rounds elapsed time to the nearest minute, never below 0.
func durationMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Minutes()))
}
