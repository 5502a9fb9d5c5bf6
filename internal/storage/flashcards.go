package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/sm2"
)

const flashcardColumns = `id, user_id, note_id, front_text, back_text, difficulty_level,
	ease_factor, interval_days, repetitions, next_review, content_hash, created_at, updated_at`

// InsertFlashcards stores cards in one transaction: either all are written
// or none. Cards without a schedule get the initial SM-2 state, due now.
func (db *DB) InsertFlashcards(ctx context.Context, cards []domain.Flashcard) ([]domain.Flashcard, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin flashcard insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flashcards (`+flashcardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare flashcard insert: %w", err)
	}
	defer stmt.Close()

	now := db.now()
	out := make([]domain.Flashcard, 0, len(cards))
	for _, c := range cards {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.EaseFactor == 0 {
			c.EaseFactor = sm2.DefaultEaseFactor
		}
		if c.NextReview.IsZero() {
			c.NextReview = now
		}
		c.CreatedAt, c.UpdatedAt = now, now
		if _, err := stmt.ExecContext(ctx,
			c.ID,
			c.UserID,
			nullString(c.NoteID),
			c.Front,
			c.Back,
			c.DifficultyLevel,
			c.EaseFactor,
			c.IntervalDays,
			c.Repetitions,
			formatTime(c.NextReview),
			nullString(c.ContentHash),
			formatTime(now),
			formatTime(now),
		); err != nil {
			return nil, fmt.Errorf("failed to insert flashcard %q: %w", c.Front, err)
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit flashcards: %w", err)
	}
	return out, nil
}

// GetFlashcard returns one of the user's flashcards.
func (db *DB) GetFlashcard(ctx context.Context, userID, cardID string) (*domain.Flashcard, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+flashcardColumns+` FROM flashcards WHERE id = ? AND user_id = ?
	`, cardID, userID)
	c, err := scanFlashcard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flashcard %s: %w", cardID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcard %s: %w", cardID, err)
	}
	return c, nil
}

// ListFlashcards returns all of the user's flashcards, newest first.
func (db *DB) ListFlashcards(ctx context.Context, userID string) ([]domain.Flashcard, error) {
	return db.queryFlashcards(ctx, `
		SELECT `+flashcardColumns+` FROM flashcards WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, userID)
}

// FlashcardsByNote returns the cards generated from or written in a note.
func (db *DB) FlashcardsByNote(ctx context.Context, userID, noteID string) ([]domain.Flashcard, error) {
	return db.queryFlashcards(ctx, `
		SELECT `+flashcardColumns+` FROM flashcards WHERE user_id = ? AND note_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, userID, noteID)
}

// DueFlashcards returns up to limit cards with next_review at or before now,
// the most overdue first.
func (db *DB) DueFlashcards(ctx context.Context, userID string, now time.Time, limit int) ([]domain.Flashcard, error) {
	return db.queryFlashcards(ctx, `
		SELECT `+flashcardColumns+` FROM flashcards
		WHERE user_id = ? AND next_review <= ?
		ORDER BY next_review ASC, rowid ASC
		LIMIT ?
	`, userID, formatTime(now), limit)
}

// CountDueFlashcards counts the user's cards due at now.
func (db *DB) CountDueFlashcards(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM flashcards WHERE user_id = ? AND next_review <= ?
	`, userID, formatTime(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due flashcards: %w", err)
	}
	return n, nil
}

// UpdateFlashcardSchedule writes the result of one grading event. The four
// schedule fields change together in a single statement.
func (db *DB) UpdateFlashcardSchedule(ctx context.Context, userID, cardID string, next sm2.Next) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE flashcards
		SET ease_factor = ?, interval_days = ?, repetitions = ?, next_review = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`,
		next.EaseFactor,
		next.IntervalDays,
		next.Repetitions,
		formatTime(next.NextReview),
		formatTime(db.now()),
		cardID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule for flashcard %s: %w", cardID, err)
	}
	return expectOne(res, "flashcard "+cardID)
}

// DeleteFlashcard removes one of the user's cards.
func (db *DB) DeleteFlashcard(ctx context.Context, userID, cardID string) error {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM flashcards WHERE id = ? AND user_id = ?
	`, cardID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete flashcard %s: %w", cardID, err)
	}
	return expectOne(res, "flashcard "+cardID)
}

func (db *DB) queryFlashcards(ctx context.Context, query string, args ...any) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flashcards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		c, err := scanFlashcard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flashcard row: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func scanFlashcard(r rowScanner) (*domain.Flashcard, error) {
	var (
		c                               domain.Flashcard
		noteID, hash                    sql.NullString
		nextReview, createdAt, updatedAt string
	)
	if err := r.Scan(
		&c.ID,
		&c.UserID,
		&noteID,
		&c.Front,
		&c.Back,
		&c.DifficultyLevel,
		&c.EaseFactor,
		&c.IntervalDays,
		&c.Repetitions,
		&nextReview,
		&hash,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	c.NoteID = noteID.String
	c.ContentHash = hash.String

	var err error
	if c.NextReview, err = parseTime(nextReview); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
