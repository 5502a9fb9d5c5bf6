// Package importer reconciles a user's note sources with the database.
// Every markdown file under a source becomes one note; Q:/A: blocks inside
// it become flashcards that keep their schedule for as long as their text
// is unchanged.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/studynotes/internal/clock"
	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/fingerprint"
	"github.com/conorfennell/studynotes/internal/generator"
	"github.com/conorfennell/studynotes/internal/gitsource"
	"github.com/conorfennell/studynotes/internal/parser"
	"github.com/conorfennell/studynotes/internal/storage"
)

// Result counts what one source sync changed.
type Result struct {
	SourceID     int64  `json:"source_id"`
	Path         string `json:"path"`
	NotesAdded   int    `json:"notes_added"`
	NotesUpdated int    `json:"notes_updated"`
	NotesDeleted int    `json:"notes_deleted"`
	CardsAdded   int    `json:"cards_added"`
	CardsDeleted int    `json:"cards_deleted"`
	Errors       int    `json:"errors"`
}

// Importer syncs sources into storage.
type Importer struct {
	db       *storage.DB
	reposDir string
	clock    clock.Clock
	logger   *slog.Logger
	progress io.Writer
}

// New returns an Importer that checks out git sources under reposDir.
func New(db *storage.DB, reposDir string, clk clock.Clock, logger *slog.Logger) *Importer {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{db: db, reposDir: reposDir, clock: clk, logger: logger}
}

// SetProgress sends git clone and pull progress to w.
func (im *Importer) SetProgress(w io.Writer) { im.progress = w }

// SyncAll syncs every source of the user. A failing source is logged and
// skipped; the returned error joins all failures.
func (im *Importer) SyncAll(ctx context.Context, userID string) ([]Result, error) {
	im.logger.Info("Starting sync process for all sources...", "user", userID)
	sources, err := im.db.GetAllSources(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		im.logger.Info("No sources configured. Add one with `studynotes source add <path/or/url.git>`")
		return nil, nil
	}

	var (
		results []Result
		errs    []error
	)
	for _, src := range sources {
		res, err := im.SyncSource(ctx, src)
		if err != nil {
			im.logger.Error("Error syncing source", "id", src.ID, "path", src.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	im.logger.Info("Sync process complete.", "sources", len(sources), "failed", len(errs))
	return results, errors.Join(errs...)
}

// SyncSource reconciles one source. Git sources are cloned or pulled first.
func (im *Importer) SyncSource(ctx context.Context, src domain.Source) (Result, error) {
	im.logger.Info("Syncing source", "id", src.ID, "type", src.Type, "path", src.Path)

	dir := src.Path
	if src.Type == domain.SourceGit {
		local, err := gitsource.LocalPath(im.reposDir, src.Path)
		if err != nil {
			return Result{}, fmt.Errorf("determining local path for %s: %w", src.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(local), os.ModePerm); err != nil {
			return Result{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, src.Path, local, im.progress, im.logger); err != nil {
			return Result{}, err
		}
		dir = local
	}
	return im.reconcile(ctx, src, dir)
}

func (im *Importer) reconcile(ctx context.Context, src domain.Source, dir string) (Result, error) {
	res := Result{SourceID: src.ID, Path: src.Path}

	existing, err := im.db.NotesBySource(ctx, src.UserID, src.ID)
	if err != nil {
		return res, fmt.Errorf("getting notes for source %d: %w", src.ID, err)
	}
	byPath := make(map[string]domain.Note, len(existing))
	for _, n := range existing {
		byPath[n.SourcePath] = n
	}
	seen := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		doc, err := parser.ParseFile(path)
		if err != nil {
			im.logger.Warn("Failed to parse note", "path", path, "error", err)
			res.Errors++
			return nil
		}
		var prev *domain.Note
		if n, ok := byPath[rel]; ok {
			prev = &n
		}
		if err := im.importNote(ctx, src, rel, doc, prev, &res); err != nil {
			im.logger.Warn("Failed to import note", "path", path, "error", err)
			res.Errors++
		}
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	for path, n := range byPath {
		if seen[path] {
			continue
		}
		im.logger.Info("Orphaned note, deleting", "path", path, "id", n.ID)
		if err := im.db.DeleteNote(ctx, src.UserID, n.ID); err != nil {
			im.logger.Warn("Failed to delete orphaned note", "id", n.ID, "error", err)
			res.Errors++
			continue
		}
		res.NotesDeleted++
	}

	if err := im.db.UpdateSourceLastScanned(ctx, src.UserID, src.ID, im.clock.Now()); err != nil {
		im.logger.Warn("Failed to update last scanned for source", "source_id", src.ID, "error", err)
	}

	im.logger.Info("Reconciliation complete",
		"path", src.Path,
		"notes_added", res.NotesAdded,
		"notes_updated", res.NotesUpdated,
		"notes_deleted", res.NotesDeleted,
		"cards_added", res.CardsAdded,
		"cards_deleted", res.CardsDeleted,
		"errors", res.Errors,
	)
	return res, nil
}

// importNote writes doc as the note at rel, then reconciles its cards.
// prev is the stored note for rel, if any. Cards are reconciled even for an
// unchanged note so that a card write that failed earlier is retried.
func (im *Importer) importNote(ctx context.Context, src domain.Source, rel string, doc parser.Document, prev *domain.Note, res *Result) error {
	hash := fingerprint.Note(doc.Title, doc.Body)
	if prev != nil && prev.ContentHash == hash {
		return im.reconcileCards(ctx, *prev, doc.Cards, res)
	}

	analysis := generator.Analyze(doc.Body)
	tags := doc.Tags
	if len(tags) == 0 {
		tags = analysis.SuggestedTags
	}

	note := domain.Note{
		UserID:          src.UserID,
		Title:           doc.Title,
		Content:         doc.Body,
		Tags:            tags,
		DifficultyLevel: analysis.Difficulty,
		SourceID:        src.ID,
		SourcePath:      rel,
		ContentHash:     hash,
	}
	if prev == nil {
		if err := im.db.InsertNote(ctx, &note); err != nil {
			return err
		}
		im.logger.Info("New note found, inserting...", "path", rel, "id", note.ID)
		res.NotesAdded++
	} else {
		note.ID = prev.ID
		if err := im.db.UpdateNoteContent(ctx, &note); err != nil {
			return err
		}
		im.logger.Info("Note changed, updating", "path", rel, "id", note.ID)
		res.NotesUpdated++
	}
	return im.reconcileCards(ctx, note, doc.Cards, res)
}

// reconcileCards inserts cards new to the note and deletes the ones no
// longer written in it. Unchanged cards keep their schedule. Generated
// cards, which carry no content hash, are left alone.
func (im *Importer) reconcileCards(ctx context.Context, note domain.Note, parsed []parser.Card, res *Result) error {
	stored, err := im.db.FlashcardsByNote(ctx, note.UserID, note.ID)
	if err != nil {
		return err
	}
	storedByHash := make(map[string]domain.Flashcard)
	for _, c := range stored {
		if c.ContentHash != "" {
			storedByHash[c.ContentHash] = c
		}
	}

	found := make(map[string]bool)
	var fresh []domain.Flashcard
	for _, c := range parsed {
		h := fingerprint.Card(c.Front, c.Back)
		if found[h] {
			continue
		}
		found[h] = true
		if _, ok := storedByHash[h]; ok {
			continue
		}
		fresh = append(fresh, domain.Flashcard{
			UserID:          note.UserID,
			NoteID:          note.ID,
			Front:           c.Front,
			Back:            c.Back,
			DifficultyLevel: note.DifficultyLevel,
			ContentHash:     h,
		})
	}
	if len(fresh) > 0 {
		if _, err := im.db.InsertFlashcards(ctx, fresh); err != nil {
			return err
		}
		res.CardsAdded += len(fresh)
	}

	for h, c := range storedByHash {
		if found[h] {
			continue
		}
		im.logger.Info("Orphaned card, deleting", "hash", h)
		if err := im.db.DeleteFlashcard(ctx, note.UserID, c.ID); err != nil {
			return err
		}
		res.CardsDeleted++
	}
	return nil
}
