package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/studynotes/internal/domain"
)

const sessionColumns = `id, user_id, session_type, duration_minutes, cards_studied,
	correct_answers, notes_reviewed, created_at`

// InsertStudySession persists a finished session record. CreatedAt is kept
// when set so the record reflects when the run ended.
func (db *DB) InsertStudySession(ctx context.Context, s *domain.StudySession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = db.now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO study_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.UserID,
		string(s.SessionType),
		s.DurationMinutes,
		s.CardsStudied,
		s.CorrectAnswers,
		s.NotesReviewed,
		formatTime(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert study session: %w", err)
	}
	return nil
}

// ListStudySessions returns every session of the user, newest first.
func (db *DB) ListStudySessions(ctx context.Context, userID string) ([]domain.StudySession, error) {
	return db.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM study_sessions WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, userID)
}

// RecentStudySessions returns the user's latest limit sessions.
func (db *DB) RecentStudySessions(ctx context.Context, userID string, limit int) ([]domain.StudySession, error) {
	return db.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM study_sessions WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, limit)
}

func (db *DB) querySessions(ctx context.Context, query string, args ...any) ([]domain.StudySession, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query study sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.StudySession
	for rows.Next() {
		var (
			s           domain.StudySession
			sessionType string
			createdAt   string
		)
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&sessionType,
			&s.DurationMinutes,
			&s.CardsStudied,
			&s.CorrectAnswers,
			&s.NotesReviewed,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan study session row: %w", err)
		}
		s.SessionType = domain.SessionType(sessionType)
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
