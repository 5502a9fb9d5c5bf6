package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studynotes/internal/domain"
)

const noteColumns = `id, user_id, title, content, tags, difficulty_level, study_count,
	last_studied, source_id, source_path, content_hash, created_at, updated_at`

// InsertNote stores a new note, filling in its ID and timestamps.
func (db *DB) InsertNote(ctx context.Context, n *domain.Note) error {
	tags, err := json.Marshal(nonNilTags(n.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	now := db.now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt, n.UpdatedAt = now, now

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.UserID,
		n.Title,
		n.Content,
		string(tags),
		n.DifficultyLevel,
		n.StudyCount,
		nullTime(n.LastStudied),
		nullInt64(n.SourceID),
		nullString(n.SourcePath),
		nullString(n.ContentHash),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert note %s: %w", n.Title, err)
	}
	return nil
}

// GetNote returns one of the user's notes.
func (db *DB) GetNote(ctx context.Context, userID, noteID string) (*domain.Note, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?
	`, noteID, userID)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("note %s: %w", noteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", noteID, err)
	}
	return n, nil
}

// ListNotes returns the user's notes, newest first.
func (db *DB) ListNotes(ctx context.Context, userID string) ([]domain.Note, error) {
	return db.queryNotes(ctx, `
		SELECT `+noteColumns+` FROM notes WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, userID)
}

// NotesBySource returns the notes imported from one source.
func (db *DB) NotesBySource(ctx context.Context, userID string, sourceID int64) ([]domain.Note, error) {
	return db.queryNotes(ctx, `
		SELECT `+noteColumns+` FROM notes WHERE user_id = ? AND source_id = ?
		ORDER BY source_path
	`, userID, sourceID)
}

// UpdateNoteContent rewrites the editable fields of a note.
func (db *DB) UpdateNoteContent(ctx context.Context, n *domain.Note) error {
	tags, err := json.Marshal(nonNilTags(n.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	n.UpdatedAt = db.now()
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes
		SET title = ?, content = ?, tags = ?, difficulty_level = ?, content_hash = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`,
		n.Title,
		n.Content,
		string(tags),
		n.DifficultyLevel,
		nullString(n.ContentHash),
		formatTime(n.UpdatedAt),
		n.ID,
		n.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note %s: %w", n.ID, err)
	}
	return expectOne(res, "note "+n.ID)
}

// MarkNoteStudied bumps the study counter of a note.
func (db *DB) MarkNoteStudied(ctx context.Context, userID, noteID string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes SET study_count = study_count + 1, last_studied = ?
		WHERE id = ? AND user_id = ?
	`, formatTime(at), noteID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark note %s studied: %w", noteID, err)
	}
	return expectOne(res, "note "+noteID)
}

// DeleteNote removes a note; its flashcards and summaries go with it.
func (db *DB) DeleteNote(ctx context.Context, userID, noteID string) error {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM notes WHERE id = ? AND user_id = ?
	`, noteID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %w", noteID, err)
	}
	return expectOne(res, "note "+noteID)
}

// InsertSummary stores a generated summary for a note.
func (db *DB) InsertSummary(ctx context.Context, s *domain.NoteSummary) error {
	points, err := json.Marshal(nonNilTags(s.KeyPoints))
	if err != nil {
		return fmt.Errorf("failed to encode key points: %w", err)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = db.now()
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO note_summaries (id, note_id, user_id, summary_text, key_points, ai_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.NoteID, s.UserID, s.SummaryText, string(points), nullString(s.Model), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert summary for note %s: %w", s.NoteID, err)
	}
	return nil
}

// LatestSummary returns the most recent summary of a note.
func (db *DB) LatestSummary(ctx context.Context, userID, noteID string) (*domain.NoteSummary, error) {
	var (
		s         domain.NoteSummary
		points    string
		model     sql.NullString
		createdAt string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, note_id, user_id, summary_text, key_points, ai_model, created_at
		FROM note_summaries WHERE note_id = ? AND user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, noteID, userID).Scan(&s.ID, &s.NoteID, &s.UserID, &s.SummaryText, &points, &model, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary for note %s: %w", noteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for note %s: %w", noteID, err)
	}
	if err := json.Unmarshal([]byte(points), &s.KeyPoints); err != nil {
		return nil, fmt.Errorf("failed to decode key points: %w", err)
	}
	s.Model = model.String
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) queryNotes(ctx context.Context, query string, args ...any) ([]domain.Note, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func scanNote(r rowScanner) (*domain.Note, error) {
	var (
		n                    domain.Note
		tags                 string
		lastStudied          sql.NullString
		sourceID             sql.NullInt64
		sourcePath, hash     sql.NullString
		createdAt, updatedAt string
	)
	if err := r.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Content,
		&tags,
		&n.DifficultyLevel,
		&n.StudyCount,
		&lastStudied,
		&sourceID,
		&sourcePath,
		&hash,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	n.SourceID = sourceID.Int64
	n.SourcePath = sourcePath.String
	n.ContentHash = hash.String

	var err error
	if n.LastStudied, err = parseNullTime(lastStudied); err != nil {
		return nil, err
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
