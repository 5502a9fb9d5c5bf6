package storage

// Timestamps are stored as fixed-width UTC text (see timeLayout) so that
// string comparison in SQL orders them correctly.
const schema = `
-- 'sources' are directories or git repositories of markdown notes.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned TEXT,
    UNIQUE(user_id, path)
);

CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    difficulty_level INTEGER NOT NULL DEFAULT 1 CHECK (difficulty_level >= 0),
    study_count INTEGER NOT NULL DEFAULT 0,
    last_studied TEXT,
    source_id INTEGER,
    source_path TEXT,
    content_hash TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_source_path ON notes(user_id, source_id, source_path);

-- 'flashcards' carry their SM-2 schedule alongside the content.
CREATE TABLE IF NOT EXISTS flashcards (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    note_id TEXT,
    front_text TEXT NOT NULL,
    back_text TEXT NOT NULL,
    difficulty_level INTEGER NOT NULL DEFAULT 1,
    ease_factor REAL NOT NULL DEFAULT 2.5 CHECK (ease_factor >= 1.3),
    interval_days INTEGER NOT NULL DEFAULT 0 CHECK (interval_days >= 0),
    repetitions INTEGER NOT NULL DEFAULT 0 CHECK (repetitions >= 0),
    next_review TEXT NOT NULL,
    content_hash TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,

    FOREIGN KEY(note_id) REFERENCES notes(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_flashcards_due ON flashcards(user_id, next_review);
CREATE INDEX IF NOT EXISTS idx_flashcards_note ON flashcards(note_id);

CREATE TABLE IF NOT EXISTS note_summaries (
    id TEXT PRIMARY KEY,
    note_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    key_points TEXT NOT NULL DEFAULT '[]',
    ai_model TEXT,
    created_at TEXT NOT NULL,

    FOREIGN KEY(note_id) REFERENCES notes(id) ON DELETE CASCADE
);

-- 'study_sessions' are written once, when a study run ends.
CREATE TABLE IF NOT EXISTS study_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_type TEXT NOT NULL CHECK (session_type IN ('flashcards', 'notes', 'summary')),
    duration_minutes INTEGER NOT NULL CHECK (duration_minutes >= 0),
    cards_studied INTEGER NOT NULL DEFAULT 0,
    correct_answers INTEGER NOT NULL DEFAULT 0,
    notes_reviewed INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    CHECK (correct_answers <= cards_studied)
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON study_sessions(user_id, created_at);
`
