// Package stats derives study statistics from a user's notes, flashcards
// and sessions. Nothing is stored; every call recomputes from its inputs.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/studynotes/internal/clock"
	"github.com/conorfennell/studynotes/internal/domain"
)

// ErrInvalidInput is returned for negative durations or difficulties.
var ErrInvalidInput = errors.New("stats: invalid input")

// StreakWindowDays is the trailing window counted by StreakDays.
const StreakWindowDays = 30

// Compute aggregates the three collections as of now. StreakDays is the
// number of distinct calendar days, in now's location, with at least one
// session in the last StreakWindowDays days.
func Compute(notes []domain.Note, flashcards []domain.Flashcard, sessions []domain.StudySession, now time.Time) (domain.StudyStats, error) {
	var totalDifficulty, totalMinutes int
	for _, n := range notes {
		if n.DifficultyLevel < 0 {
			return domain.StudyStats{}, fmt.Errorf("%w: note %s has difficulty %d", ErrInvalidInput, n.ID, n.DifficultyLevel)
		}
		totalDifficulty += n.DifficultyLevel
	}

	windowStart := now.AddDate(0, 0, -StreakWindowDays)
	days := make(map[string]struct{})
	for _, s := range sessions {
		if s.DurationMinutes < 0 {
			return domain.StudyStats{}, fmt.Errorf("%w: session %s has duration %d", ErrInvalidInput, s.ID, s.DurationMinutes)
		}
		totalMinutes += s.DurationMinutes
		if !s.CreatedAt.Before(windowStart) {
			days[s.CreatedAt.In(now.Location()).Format(time.DateOnly)] = struct{}{}
		}
	}

	var avg float64
	if len(notes) > 0 {
		avg = float64(totalDifficulty) / float64(len(notes))
	}

	return domain.StudyStats{
		TotalNotes:        len(notes),
		TotalFlashcards:   len(flashcards),
		TotalStudyTime:    totalMinutes,
		StreakDays:        len(days),
		AverageDifficulty: avg,
	}, nil
}

// Source reads the collections of one user.
type Source interface {
	ListNotes(ctx context.Context, userID string) ([]domain.Note, error)
	ListFlashcards(ctx context.Context, userID string) ([]domain.Flashcard, error)
	ListStudySessions(ctx context.Context, userID string) ([]domain.StudySession, error)
}

// Aggregator loads a user's records and computes their statistics.
type Aggregator struct {
	src   Source
	clock clock.Clock
}

// NewAggregator returns an Aggregator reading from src.
func NewAggregator(src Source, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Aggregator{src: src, clock: clk}
}

// ForUser loads the user's notes, flashcards and sessions concurrently and
// computes their statistics.
func (a *Aggregator) ForUser(ctx context.Context, userID string) (domain.StudyStats, error) {
	var (
		notes    []domain.Note
		cards    []domain.Flashcard
		sessions []domain.StudySession
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		notes, err = a.src.ListNotes(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		cards, err = a.src.ListFlashcards(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		sessions, err = a.src.ListStudySessions(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.StudyStats{}, fmt.Errorf("loading study data for %s: %w", userID, err)
	}
	return Compute(notes, cards, sessions, a.clock.Now())
}
