// Package web serves the study API as JSON over HTTP.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/generator"
	"github.com/conorfennell/studynotes/internal/session"
	"github.com/conorfennell/studynotes/internal/sm2"
	"github.com/conorfennell/studynotes/internal/storage"
	"github.com/conorfennell/studynotes/internal/study"
)

// UserHeader names the acting user. Requests without it act as the
// server's default user.
const UserHeader = "X-User-ID"

// maxBodyBytes bounds request bodies; notes are the largest.
const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

var validate = validator.New()

// Server holds the dependencies for the HTTP server.
type Server struct {
	svc         *study.Service
	defaultUser string
	logger      *slog.Logger
	router      *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(svc *study.Service, defaultUser string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:         svc,
		defaultUser: defaultUser,
		logger:      logger,
		router:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /api/deck", s.handleGetDeck())
	s.router.HandleFunc("POST /api/study/start", s.handleStartStudy())
	s.router.HandleFunc("GET /api/study/current", s.handleCurrentStudy())
	s.router.HandleFunc("POST /api/study/grade", s.handleGrade())
	s.router.HandleFunc("POST /api/study/exit", s.handleExitStudy())
	s.router.HandleFunc("POST /api/study/abandon", s.handleAbandonStudy())

	s.router.HandleFunc("GET /api/stats", s.handleGetStats())
	s.router.HandleFunc("GET /api/sessions", s.handleGetSessions())

	s.router.HandleFunc("GET /api/notes", s.handleGetNotes())
	s.router.HandleFunc("POST /api/notes", s.handlePostNote())
	s.router.HandleFunc("DELETE /api/notes/{id}", s.handleDeleteNote())
	s.router.HandleFunc("POST /api/notes/{id}/flashcards", s.handleGenerateFlashcards())
	s.router.HandleFunc("POST /api/notes/{id}/summary", s.handleSummarize())

	s.router.HandleFunc("GET /api/flashcards", s.handleGetFlashcards())
	s.router.HandleFunc("GET /api/flashcards/{id}", s.handleGetFlashcard())
	s.router.HandleFunc("DELETE /api/flashcards/{id}", s.handleDeleteFlashcard())

	// Source management routes
	s.router.HandleFunc("GET /api/sources", s.handleGetSources())
	s.router.HandleFunc("POST /api/sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())

	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) user(r *http.Request) string {
	if u := r.Header.Get(UserHeader); u != "" {
		return u
	}
	return s.defaultUser
}

// handleGetDeck reports the next deck and how many cards are due in all.
// The deck is capped by study.deck_limit, the count is not.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := s.user(r)
		due, err := s.svc.CountDue(r.Context(), user)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cards, err := s.svc.DueFlashcards(r.Context(), user)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"due_count": due,
			"cards":     nonNil(cards),
		})
	}
}

func (s *Server) handleStartStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.svc.Start(r.Context(), s.user(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, view)
	}
}

func (s *Server) handleCurrentStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.svc.Current(s.user(r)))
	}
}

type gradeRequest struct {
	Quality *int `json:"quality" validate:"required"`
}

// handleGrade grades the current card and returns the next one.
func (s *Server) handleGrade() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		out, err := s.svc.Grade(r.Context(), s.user(r), sm2.Quality(*req.Quality))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleExitStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.svc.Exit(r.Context(), s.user(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if rec == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleAbandonStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.Abandon(s.user(r)); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.svc.Stats(r.Context(), s.user(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) handleGetSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := s.svc.RecentSessions(r.Context(), s.user(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(sessions))
	}
}

func (s *Server) handleGetNotes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notes, err := s.svc.Notes(r.Context(), s.user(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(notes))
	}
}

func (s *Server) handlePostNote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in study.NoteInput
		if err := s.decode(w, r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}
		note, err := s.svc.AddNote(r.Context(), s.user(r), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, note)
	}
}

func (s *Server) handleDeleteNote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.DeleteNote(r.Context(), s.user(r), r.PathValue("id")); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type generateRequest struct {
	Count      int    `json:"count" validate:"gte=0,lte=50"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

// handleGenerateFlashcards creates cards from a note. An empty body uses
// the generator defaults.
func (s *Server) handleGenerateFlashcards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := s.decodeOptional(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		cards, err := s.svc.GenerateFlashcards(r.Context(), s.user(r), r.PathValue("id"), req.Count, req.Difficulty)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, cards)
	}
}

type summaryRequest struct {
	Style     string `json:"style" validate:"omitempty,oneof=bullet paragraph outline"`
	MaxLength int    `json:"max_length" validate:"gte=0,lte=10000"`
}

func (s *Server) handleSummarize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req summaryRequest
		if err := s.decodeOptional(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		sum, err := s.svc.Summarize(r.Context(), s.user(r), r.PathValue("id"), req.Style, req.MaxLength)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, sum)
	}
}

// handleGetFlashcards lists the user's cards, or one note's with ?note=.
func (s *Server) handleGetFlashcards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			cards []domain.Flashcard
			err   error
		)
		if noteID := r.URL.Query().Get("note"); noteID != "" {
			cards, err = s.svc.FlashcardsByNote(r.Context(), s.user(r), noteID)
		} else {
			cards, err = s.svc.Flashcards(r.Context(), s.user(r))
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(cards))
	}
}

func (s *Server) handleGetFlashcard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.svc.Flashcard(r.Context(), s.user(r), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, card)
	}
}

func (s *Server) handleDeleteFlashcard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.DeleteFlashcard(r.Context(), s.user(r), r.PathValue("id")); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.svc.Sources(r.Context(), s.user(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(sources))
	}
}

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
}

func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		src, err := s.svc.AddSource(r.Context(), s.user(r), req.Path)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, src)
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid source ID", errBadRequest))
			return
		}
		if err := s.svc.RemoveSource(r.Context(), s.user(r), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and reports what changed.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.svc.Sync(r.Context(), s.user(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, nonNil(results))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	return s.decodeBody(w, r, v, false)
}

// decodeOptional is decode for endpoints whose body may be empty. The
// length of a chunked body is unknown up front, so emptiness is judged by
// the decoder.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	return s.decodeBody(w, r, v, true)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, sm2.ErrInvalidGrade),
		errors.Is(err, study.ErrInvalidInput),
		errors.Is(err, generator.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrEmptyDeck),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrAlreadyActive):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
