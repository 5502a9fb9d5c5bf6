package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/studynotes/internal/domain"
)

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, userID, path string, sourceType domain.SourceType) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (user_id, path, type)
		VALUES (?, ?, ?)
	`, userID, path, string(sourceType))
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(ctx context.Context, userID, path string) (*domain.Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, path, type, last_scanned
		FROM sources WHERE user_id = ? AND path = ?
	`, userID, path)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return s, nil
}

// GetAllSources retrieves all of a user's sources.
func (db *DB) GetAllSources(ctx context.Context, userID string) ([]domain.Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, path, type, last_scanned
		FROM sources WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned records when a source was last reconciled.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, userID string, sourceID int64, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE sources SET last_scanned = ?
		WHERE id = ? AND user_id = ?
	`, formatTime(at), sourceID, userID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return expectOne(res, fmt.Sprintf("source %d", sourceID))
}

// DeleteSource removes a source together with its notes and their cards.
func (db *DB) DeleteSource(ctx context.Context, userID string, sourceID int64) error {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM sources WHERE id = ? AND user_id = ?
	`, sourceID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
	}
	return expectOne(res, fmt.Sprintf("source %d", sourceID))
}

func scanSource(r rowScanner) (*domain.Source, error) {
	var (
		s           domain.Source
		sourceType  string
		lastScanned sql.NullString
	)
	if err := r.Scan(&s.ID, &s.UserID, &s.Path, &sourceType, &lastScanned); err != nil {
		return nil, err
	}
	s.Type = domain.SourceType(sourceType)
	t, err := parseNullTime(lastScanned)
	if err != nil {
		return nil, err
	}
	s.LastScanned = t
	return &s, nil
}
