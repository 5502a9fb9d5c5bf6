package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/conorfennell/studynotes/internal/domain"
)

// ErrEmptyResponse is returned when the model sends back no usable choice.
var ErrEmptyResponse = errors.New("generator: model returned no choices")

const systemPrompt = "You are a study assistant. You write concise, accurate study material and answer only with JSON."

// OpenAI generates study material with a chat completion model.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI returns a generator for model. baseURL overrides the API
// endpoint, e.g. for a compatible local server; empty keeps the default.
func NewOpenAI(apiKey, baseURL, model string, logger *slog.Logger) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, logger: logger}
}

type flashcardPayload struct {
	Flashcards []domain.GeneratedCard `json:"flashcards"`
}

// Flashcards asks the model for Count cards as front/back/difficulty triples.
func (o *OpenAI) Flashcards(ctx context.Context, req FlashcardRequest) ([]domain.GeneratedCard, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`Write %d %s flashcards from the notes below.
Respond with {"flashcards": [{"front": string, "back": string, "difficulty": integer 1-5}]}.

Notes:
%s`, req.Count, req.Difficulty, req.Content)

	var payload flashcardPayload
	if err := o.complete(ctx, prompt, &payload); err != nil {
		return nil, err
	}

	cards := make([]domain.GeneratedCard, 0, len(payload.Flashcards))
	for _, c := range payload.Flashcards {
		c.Front, c.Back = strings.TrimSpace(c.Front), strings.TrimSpace(c.Back)
		if c.Front == "" || c.Back == "" {
			continue
		}
		if c.Difficulty == 0 {
			c.Difficulty = DifficultyLevel(req.Difficulty)
		}
		c.Difficulty = clampDifficulty(c.Difficulty)
		cards = append(cards, c)
		if len(cards) == req.Count {
			break
		}
	}
	return cards, nil
}

type summaryPayload struct {
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points"`
	Confidence float64  `json:"confidence"`
}

// Summary asks the model for a summary in the requested style.
func (o *OpenAI) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if err := req.Normalize(); err != nil {
		return Summary{}, err
	}
	prompt := fmt.Sprintf(`Summarize the notes below in %s style, at most %d characters.
Respond with {"summary": string, "key_points": [string], "confidence": number 0-1}.

Notes:
%s`, req.Style, req.MaxLength, req.Content)

	var payload summaryPayload
	if err := o.complete(ctx, prompt, &payload); err != nil {
		return Summary{}, err
	}
	return Summary{
		Text:       truncateRunes(strings.TrimSpace(payload.Summary), req.MaxLength),
		KeyPoints:  payload.KeyPoints,
		Confidence: payload.Confidence,
		Model:      o.model,
	}, nil
}

func (o *OpenAI) complete(ctx context.Context, prompt string, out any) error {
	o.logger.Debug("Generating via OpenAI", "model", o.model)
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyResponse
	}
	o.logger.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decoding model response: %w", err)
	}
	return nil
}
