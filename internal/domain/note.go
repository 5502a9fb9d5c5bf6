package domain

import "time"

// Note is a piece of study material owned by one user.
type Note struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Tags            []string   `json:"tags"`
	DifficultyLevel int        `json:"difficulty_level"`
	StudyCount      int        `json:"study_count"`
	LastStudied     *time.Time `json:"last_studied,omitempty"`
	SourceID        int64      `json:"source_id,omitempty"`
	SourcePath      string     `json:"source_path,omitempty"`
	ContentHash     string     `json:"content_hash,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NoteSummary is a generated summary of a note.
type NoteSummary struct {
	ID          string    `json:"id"`
	NoteID      string    `json:"note_id"`
	UserID      string    `json:"user_id"`
	SummaryText string    `json:"summary_text"`
	KeyPoints   []string  `json:"key_points"`
	Model       string    `json:"ai_model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SourceType tells the importer how to reach a source.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)

// Source is a directory or git repository of markdown notes.
type Source struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Path        string     `json:"path"`
	Type        SourceType `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}
