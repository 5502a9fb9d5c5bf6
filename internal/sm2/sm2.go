// Package sm2 implements the SM-2 spaced-repetition schedule.
package sm2

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidGrade is returned for a quality outside [0, 5].
var ErrInvalidGrade = errors.New("sm2: invalid grade")

const (
	// MinEaseFactor is the floor the ease factor never drops below.
	MinEaseFactor = 1.3
	// DefaultEaseFactor is the ease of a card that has never been graded.
	DefaultEaseFactor = 2.5
	// PassingQuality is the lowest grade counted as remembered.
	PassingQuality Quality = 3
)

// Quality is the learner's 0-5 recall grade for the card just reviewed.
type Quality int

const (
	Blackout Quality = iota // no recall at all
	Wrong                   // wrong, but the answer looked familiar
	Hard                    // wrong, but the answer came easily once shown
	Difficult               // correct with serious difficulty
	Good                    // correct after some hesitation
	Perfect                 // correct immediately
)

// IsValid reports whether q is within [0, 5].
func (q Quality) IsValid() bool {
	return q >= Blackout && q <= Perfect
}

// Correct reports whether q counts as remembered.
func (q Quality) Correct() bool {
	return q >= PassingQuality
}

// ParseQuality parses a decimal grade and checks its range.
func ParseQuality(s string) (Quality, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidGrade, s)
	}
	q := Quality(n)
	if !q.IsValid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidGrade, n)
	}
	return q, nil
}

// State is the part of a card the schedule reads.
type State struct {
	EaseFactor   float64
	IntervalDays int
	Repetitions  int
}

// NewState is the schedule of a freshly created card.
func NewState() State {
	return State{EaseFactor: DefaultEaseFactor}
}

// Next is the schedule produced by one grading event.
type Next struct {
	EaseFactor   float64
	IntervalDays int
	Repetitions  int
	NextReview   time.Time
}

// State drops the review date.
func (n Next) State() State {
	return State{EaseFactor: n.EaseFactor, IntervalDays: n.IntervalDays, Repetitions: n.Repetitions}
}

// Schedule grades a card reviewed at now. The input is not modified, and on
// error nothing is computed.
func Schedule(current State, q Quality, now time.Time) (Next, error) {
	if !q.IsValid() {
		return Next{}, fmt.Errorf("%w: %d", ErrInvalidGrade, int(q))
	}

	interval := current.IntervalDays
	reps := current.Repetitions
	if q.Correct() {
		switch reps {
		case 0:
			interval = 1
		case 1:
			interval = 6
		default:
			// math.Round rounds half away from zero.
			interval = int(math.Round(float64(interval) * current.EaseFactor))
			if interval < 1 {
				interval = 1
			}
		}
		reps++
	} else {
		reps = 0
		interval = 1
	}

	return Next{
		EaseFactor:   nextEase(current.EaseFactor, q),
		IntervalDays: interval,
		Repetitions:  reps,
		NextReview:   NextReviewDate(now, interval),
	}, nil
}

// nextEase applies EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02)), floored.
func nextEase(ease float64, q Quality) float64 {
	d := float64(5 - q)
	return math.Max(MinEaseFactor, ease+(0.1-d*(0.08+d*0.02)))
}

// NextReviewDate adds interval calendar days to now.
func NextReviewDate(now time.Time, intervalDays int) time.Time {
	return now.AddDate(0, 0, intervalDays)
}
