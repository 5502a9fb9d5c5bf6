package generator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/conorfennell/studynotes/internal/domain"
)

// minCardSentence is the shortest sentence, in bytes after trimming, that
// becomes a card.
const minCardSentence = 20

// Placeholder generates cards and summaries from sentence boundaries
// without calling any model.
type Placeholder struct{}

// Flashcards turns each long enough sentence into a card, up to Count.
func (Placeholder) Flashcards(ctx context.Context, req FlashcardRequest) ([]domain.GeneratedCard, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	level := DifficultyLevel(req.Difficulty)

	var cards []domain.GeneratedCard
	for _, s := range strings.Split(req.Content, ".") {
		if len(cards) == req.Count {
			break
		}
		s = strings.TrimSpace(s)
		if len(s) <= minCardSentence {
			continue
		}
		words := strings.Split(s, " ")
		lead := strings.Join(words[:min(3, len(words))], " ")
		cards = append(cards, domain.GeneratedCard{
			Front:      fmt.Sprintf(`What is the main point about "%s..."?`, lead),
			Back:       s,
			Difficulty: level,
		})
	}
	return cards, ctx.Err()
}

// Summary keeps the first three sentences as key points and formats them.
func (Placeholder) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if err := req.Normalize(); err != nil {
		return Summary{}, err
	}

	var points []string
	for _, s := range strings.Split(req.Content, ".") {
		if len(points) == 3 {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			points = append(points, s+".")
		}
	}

	var text string
	switch req.Style {
	case StyleParagraph:
		text = strings.Join(points, " ")
	case StyleOutline:
		lines := make([]string, len(points))
		for i, p := range points {
			lines[i] = fmt.Sprintf("%d. %s", i+1, p)
		}
		text = strings.Join(lines, "\n")
	default:
		lines := make([]string, len(points))
		for i, p := range points {
			lines[i] = "• " + p
		}
		text = strings.Join(lines, "\n")
	}

	return Summary{
		Text:       truncateRunes(text, req.MaxLength),
		KeyPoints:  points,
		Confidence: 0.85,
		Model:      "placeholder",
	}, ctx.Err()
}

// Analysis is a rough reading of a note's difficulty and topic.
type Analysis struct {
	Difficulty            int      `json:"difficulty"`
	SuggestedTags         []string `json:"suggested_tags"`
	EstimatedStudyMinutes int      `json:"estimated_study_time"`
}

var topicKeywords = []struct {
	keywords []string
	tags     []string
}{
	{[]string{"javascript", "react"}, []string{"programming", "javascript", "react"}},
	{[]string{"math", "equation"}, []string{"mathematics", "equations"}},
	{[]string{"history", "war"}, []string{"history", "social-studies"}},
	{[]string{"science", "biology"}, []string{"science", "biology"}},
}

// Analyze scores difficulty from the average sentence length, suggests tags
// from keywords and estimates study time at 100 words a minute, 5 minutes
// at least.
func Analyze(content string) Analysis {
	wordCount := len(strings.Split(content, " "))
	sentenceCount := len(strings.Split(content, "."))
	avg := float64(wordCount) / float64(sentenceCount)

	difficulty := 1
	switch {
	case avg > 20:
		difficulty = 5
	case avg > 15:
		difficulty = 4
	case avg > 10:
		difficulty = 3
	case avg > 5:
		difficulty = 2
	}

	lower := strings.ToLower(content)
	var tags []string
	for _, topic := range topicKeywords {
		for _, kw := range topic.keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, topic.tags...)
				break
			}
		}
	}
	if len(tags) == 0 {
		tags = []string{"general", "study-notes"}
	}

	return Analysis{
		Difficulty:            difficulty,
		SuggestedTags:         tags,
		EstimatedStudyMinutes: max(5, int(math.Ceil(float64(wordCount)/100))),
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
