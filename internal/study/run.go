package study

import (
	"context"
	"errors"
	"fmt"

	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/session"
	"github.com/conorfennell/studynotes/internal/sm2"
)

// Start begins a run over the user's due cards. session.ErrEmptyDeck is
// returned when nothing is due and session.ErrAlreadyActive when a run is
// in progress. A completed run still waiting for its record is recorded
// first; if that fails again nothing is started.
func (s *Service) Start(ctx context.Context, userID string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.runs[userID]; ok {
		if m.State() == session.Active {
			return View{}, session.ErrAlreadyActive
		}
		// A completed run whose record could not be stored is stored now.
		if _, err := s.record(ctx, userID, m, outcomeCompleted); err != nil {
			return View{}, fmt.Errorf("recording previous run: %w", err)
		}
	}
	cards, err := s.DueFlashcards(ctx, userID)
	if err != nil {
		return View{}, err
	}
	mgr := session.New(s.db, s.clock, userID)
	if err := mgr.Start(cards); err != nil {
		return View{}, err
	}
	s.runs[userID] = mgr
	s.logger.Info("Study session started", "user", userID, "cards", len(cards))
	return view(mgr), nil
}

// Current shows the run of the user. Without one the view is idle.
func (s *Service) Current(userID string) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.runs[userID]
	if !ok {
		return View{State: session.Idle.String()}
	}
	return view(m)
}

// Grade grades the current card of the user's run. When it was the last
// card the session is recorded and the run ends.
func (s *Service) Grade(ctx context.Context, userID string, q sm2.Quality) (GradeOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.runs[userID]
	if !ok {
		return GradeOutcome{}, session.ErrNotActive
	}
	res, err := m.Grade(ctx, q)
	if err != nil {
		return GradeOutcome{}, err
	}
	if q.Correct() {
		gradesTotal.WithLabelValues("correct").Inc()
	} else {
		gradesTotal.WithLabelValues("incorrect").Inc()
	}

	if noteID := res.Card.NoteID; noteID != "" {
		// The schedule is already saved, so a failure here is only logged.
		if err := s.db.MarkNoteStudied(ctx, userID, noteID, s.clock.Now()); err != nil {
			s.logger.Warn("Failed to mark note studied", "note", noteID, "error", err)
		}
	}

	out := GradeOutcome{GradeResult: res, View: view(m)}
	if res.SessionComplete {
		// The grade itself is saved even when the record is not, so the
		// outcome is returned with the error.
		rec, err := s.record(ctx, userID, m, outcomeCompleted)
		if err != nil {
			return out, err
		}
		out.Session = rec
	}
	return out, nil
}

// Exit leaves the user's run. With study.finalize_on_exit the run is
// recorded as it stands, otherwise it is abandoned and nil is returned.
func (s *Service) Exit(ctx context.Context, userID string) (*domain.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.runs[userID]
	if !ok {
		return nil, session.ErrNotActive
	}
	if !s.cfg.FinalizeOnExit && m.State() == session.Active {
		return nil, s.abandon(userID, m)
	}
	return s.record(ctx, userID, m, outcomeFinalized)
}

// Abandon discards the user's run without a record.
func (s *Service) Abandon(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.runs[userID]
	if !ok {
		return session.ErrNotActive
	}
	return s.abandon(userID, m)
}

func (s *Service) abandon(userID string, m *session.Manager) error {
	if err := m.Abandon(); err != nil && !errors.Is(err, session.ErrNotActive) {
		return err
	}
	delete(s.runs, userID)
	sessionsTotal.WithLabelValues(outcomeAbandoned).Inc()
	s.logger.Info("Study session abandoned", "user", userID)
	return nil
}

// record finalizes m and stores its session. On a storage failure the run
// stays, completed, so that Exit can store it later.
func (s *Service) record(ctx context.Context, userID string, m *session.Manager, outcome string) (*domain.StudySession, error) {
	rec, err := m.Finalize()
	if err != nil {
		return nil, err
	}
	if err := s.db.InsertStudySession(ctx, &rec); err != nil {
		return nil, err
	}
	delete(s.runs, userID)
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionCards.Observe(float64(rec.CardsStudied))
	s.logger.Info("Study session recorded",
		"user", userID,
		"cards_studied", rec.CardsStudied,
		"correct_answers", rec.CorrectAnswers,
		"duration_minutes", rec.DurationMinutes,
	)
	return &rec, nil
}

func view(m *session.Manager) View {
	v := View{State: m.State().String(), Progress: m.Progress()}
	if m.State() != session.Idle {
		started := m.StartedAt()
		v.StartedAt = &started
	}
	if card, err := m.Current(); err == nil {
		v.Card = &card
	}
	return v
}
