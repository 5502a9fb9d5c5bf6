// Package study ties storage, generation, scheduling and statistics into
// the operations the CLI and the HTTP API expose. It keeps at most one
// study run per user.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studynotes/internal/clock"
	"github.com/conorfennell/studynotes/internal/config"
	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/fingerprint"
	"github.com/conorfennell/studynotes/internal/generator"
	"github.com/conorfennell/studynotes/internal/gitsource"
	"github.com/conorfennell/studynotes/internal/importer"
	"github.com/conorfennell/studynotes/internal/session"
	"github.com/conorfennell/studynotes/internal/sm2"
	"github.com/conorfennell/studynotes/internal/stats"
	"github.com/conorfennell/studynotes/internal/storage"
)

// ErrInvalidInput wraps validation failures of caller supplied data.
var ErrInvalidInput = errors.New("study: invalid input")

var validate = validator.New()

// NoteInput is a note written by hand rather than imported.
type NoteInput struct {
	Title   string   `json:"title" validate:"required,max=200"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags" validate:"dive,required"`
}

// View is what a client needs to show the current run.
type View struct {
	State     string            `json:"state"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
	Card      *domain.Flashcard `json:"card,omitempty"`
	Progress  session.Progress  `json:"progress"`
}

// GradeOutcome is the result of grading the current card. Session is set
// once the run has been recorded.
type GradeOutcome struct {
	session.GradeResult
	View    View                 `json:"view"`
	Session *domain.StudySession `json:"session,omitempty"`
}

// Service is safe for concurrent use.
type Service struct {
	db       *storage.DB
	gen      generator.Generator
	importer *importer.Importer
	stats    *stats.Aggregator
	clock    clock.Clock
	cfg      config.StudyConfig
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]*session.Manager
}

// New returns a Service. A nil clock means the system clock and a nil
// logger means slog.Default().
func New(db *storage.DB, gen generator.Generator, imp *importer.Importer, cfg config.StudyConfig, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		gen:      gen,
		importer: imp,
		stats:    stats.NewAggregator(db, clk),
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
		runs:     make(map[string]*session.Manager),
	}
}

// AddNote stores a hand-written note. Difficulty comes from the content
// and tags are suggested when none are given.
func (s *Service) AddNote(ctx context.Context, userID string, in NoteInput) (*domain.Note, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	analysis := generator.Analyze(in.Content)
	tags := in.Tags
	if len(tags) == 0 {
		tags = analysis.SuggestedTags
	}
	note := &domain.Note{
		UserID:          userID,
		Title:           in.Title,
		Content:         in.Content,
		Tags:            tags,
		DifficultyLevel: analysis.Difficulty,
		ContentHash:     fingerprint.Note(in.Title, in.Content),
	}
	if err := s.db.InsertNote(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// Notes lists the user's notes, newest first.
func (s *Service) Notes(ctx context.Context, userID string) ([]domain.Note, error) {
	return s.db.ListNotes(ctx, userID)
}

// DeleteNote removes a note with its flashcards and summaries.
func (s *Service) DeleteNote(ctx context.Context, userID, noteID string) error {
	return s.db.DeleteNote(ctx, userID, noteID)
}

// GenerateFlashcards creates cards from a note. All of them are stored with
// the initial schedule, due now, or none are.
func (s *Service) GenerateFlashcards(ctx context.Context, userID, noteID string, count int, difficulty string) ([]domain.Flashcard, error) {
	note, err := s.db.GetNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	generated, err := s.gen.Flashcards(ctx, generator.FlashcardRequest{
		Content:    note.Content,
		Count:      count,
		Difficulty: difficulty,
	})
	if err != nil {
		return nil, fmt.Errorf("generating flashcards for note %s: %w", noteID, err)
	}
	if len(generated) == 0 {
		return []domain.Flashcard{}, nil
	}

	initial := sm2.NewState()
	cards := make([]domain.Flashcard, len(generated))
	for i, g := range generated {
		cards[i] = domain.Flashcard{
			UserID:          userID,
			NoteID:          note.ID,
			Front:           g.Front,
			Back:            g.Back,
			DifficultyLevel: g.Difficulty,
			EaseFactor:      initial.EaseFactor,
			IntervalDays:    initial.IntervalDays,
			Repetitions:     initial.Repetitions,
			NextReview:      s.clock.Now(),
		}
	}
	stored, err := s.db.InsertFlashcards(ctx, cards)
	if err != nil {
		return nil, err
	}
	generatedCards.Add(float64(len(stored)))
	s.logger.Info("Generated flashcards", "user", userID, "note", noteID, "count", len(stored))
	return stored, nil
}

// Summarize generates and stores a summary of a note.
func (s *Service) Summarize(ctx context.Context, userID, noteID, style string, maxLength int) (*domain.NoteSummary, error) {
	note, err := s.db.GetNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	sum, err := s.gen.Summary(ctx, generator.SummaryRequest{
		Content:   note.Content,
		MaxLength: maxLength,
		Style:     style,
	})
	if err != nil {
		return nil, fmt.Errorf("summarizing note %s: %w", noteID, err)
	}
	rec := &domain.NoteSummary{
		NoteID:      note.ID,
		UserID:      userID,
		SummaryText: sum.Text,
		KeyPoints:   sum.KeyPoints,
		Model:       sum.Model,
	}
	if err := s.db.InsertSummary(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DueFlashcards returns up to the configured deck limit of cards due now,
// soonest first.
func (s *Service) DueFlashcards(ctx context.Context, userID string) ([]domain.Flashcard, error) {
	return s.db.DueFlashcards(ctx, userID, s.clock.Now(), s.cfg.DeckLimit)
}

// CountDue reports how many of the user's cards are due now, regardless of
// study.deck_limit.
func (s *Service) CountDue(ctx context.Context, userID string) (int, error) {
	return s.db.CountDueFlashcards(ctx, userID, s.clock.Now())
}

// Flashcard returns one of the user's cards.
func (s *Service) Flashcard(ctx context.Context, userID, cardID string) (*domain.Flashcard, error) {
	return s.db.GetFlashcard(ctx, userID, cardID)
}

// Flashcards lists all of the user's cards.
func (s *Service) Flashcards(ctx context.Context, userID string) ([]domain.Flashcard, error) {
	return s.db.ListFlashcards(ctx, userID)
}

// FlashcardsByNote lists the cards made from one note.
func (s *Service) FlashcardsByNote(ctx context.Context, userID, noteID string) ([]domain.Flashcard, error) {
	return s.db.FlashcardsByNote(ctx, userID, noteID)
}

// DeleteFlashcard removes one card.
func (s *Service) DeleteFlashcard(ctx context.Context, userID, cardID string) error {
	return s.db.DeleteFlashcard(ctx, userID, cardID)
}

// Stats computes the user's statistics.
func (s *Service) Stats(ctx context.Context, userID string) (domain.StudyStats, error) {
	return s.stats.ForUser(ctx, userID)
}

// RecentSessions returns the user's latest session records.
func (s *Service) RecentSessions(ctx context.Context, userID string) ([]domain.StudySession, error) {
	return s.db.RecentStudySessions(ctx, userID, s.cfg.RecentSessions)
}

// AddSource registers a note directory or git repository.
func (s *Service) AddSource(ctx context.Context, userID, path string) (*domain.Source, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty source path", ErrInvalidInput)
	}
	sourceType := domain.SourceLocal
	if gitsource.IsRemote(path) {
		sourceType = domain.SourceGit
	}
	id, err := s.db.InsertSource(ctx, userID, path, sourceType)
	if err != nil {
		return nil, err
	}
	return &domain.Source{ID: id, UserID: userID, Path: path, Type: sourceType}, nil
}

// Sources lists the user's sources.
func (s *Service) Sources(ctx context.Context, userID string) ([]domain.Source, error) {
	return s.db.GetAllSources(ctx, userID)
}

// RemoveSource deletes a source and everything imported from it.
func (s *Service) RemoveSource(ctx context.Context, userID string, sourceID int64) error {
	return s.db.DeleteSource(ctx, userID, sourceID)
}

// Sync imports every source of the user.
func (s *Service) Sync(ctx context.Context, userID string) ([]importer.Result, error) {
	return s.importer.SyncAll(ctx, userID)
}
