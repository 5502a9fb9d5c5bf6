// Package generator turns note content into flashcards and summaries.
// The Placeholder backend is deterministic text heuristics; OpenAI asks a
// chat model for the same shapes.
package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studynotes/internal/domain"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("generator: invalid request")

// Difficulty levels a caller may request.
const (
	Easy   = "easy"
	Medium = "medium"
	Hard   = "hard"
)

// Summary styles.
const (
	StyleBullet    = "bullet"
	StyleParagraph = "paragraph"
	StyleOutline   = "outline"
)

const (
	DefaultCount     = 5
	DefaultMaxLength = 200
)

// FlashcardRequest asks for cards generated from Content.
type FlashcardRequest struct {
	Content    string `json:"content" validate:"required"`
	Count      int    `json:"count" validate:"gte=1,lte=50"`
	Difficulty string `json:"difficulty" validate:"oneof=easy medium hard"`
}

// SummaryRequest asks for a summary of Content.
type SummaryRequest struct {
	Content   string `json:"content" validate:"required"`
	MaxLength int    `json:"max_length" validate:"gte=1,lte=10000"`
	Style     string `json:"style" validate:"oneof=bullet paragraph outline"`
}

// Summary is a generated summary.
type Summary struct {
	Text       string   `json:"summary"`
	KeyPoints  []string `json:"key_points"`
	Confidence float64  `json:"confidence"`
	Model      string   `json:"model,omitempty"`
}

// Generator produces study material from note content.
type Generator interface {
	Flashcards(ctx context.Context, req FlashcardRequest) ([]domain.GeneratedCard, error)
	Summary(ctx context.Context, req SummaryRequest) (Summary, error)
}

var validate = validator.New()

// Normalize fills defaults and validates the request.
func (r *FlashcardRequest) Normalize() error {
	if r.Count == 0 {
		r.Count = DefaultCount
	}
	if r.Difficulty == "" {
		r.Difficulty = Medium
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Normalize fills defaults and validates the request.
func (r *SummaryRequest) Normalize() error {
	if r.MaxLength == 0 {
		r.MaxLength = DefaultMaxLength
	}
	if r.Style == "" {
		r.Style = StyleBullet
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// DifficultyLevel maps a requested difficulty to the 1-5 card scale.
func DifficultyLevel(difficulty string) int {
	switch difficulty {
	case Easy:
		return 1
	case Hard:
		return 5
	default:
		return 3
	}
}

func clampDifficulty(d int) int {
	return min(max(d, 1), 5)
}
