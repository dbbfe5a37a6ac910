package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lshigami/examcore/config"
	"github.com/lshigami/examcore/internal/model"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const (
	// unavailableInsight is used when no reasoning model is configured.
	unavailableInsight = "(AI Insight unavailable) This question tests your fundamental understanding. Review the core concepts to identify the correct approach."
	// failedInsight replaces the feedback of an answer whose reasoning call failed or timed out.
	failedInsight = "(AI Insight unavailable, using fallback) The correct answer is determined by the specific rules of the question topic. Review the concept definitions to clarify the distinction between the options."
)

// InsightRequest is everything the tutor prompt needs for one answer.
type InsightRequest struct {
	QuestionText    string
	SubmittedAnswer string
	CorrectAnswer   string
	Explanation     string
	Difficulty      model.Difficulty
	IsCorrect       bool
}

// ReasoningService produces a short natural-language explanation for one answer.
type ReasoningService interface {
	Explain(ctx context.Context, req InsightRequest) (string, error)
}

// contentGenerator is the part of *genai.GenerativeModel we use.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type geminiReasoningService struct {
	client *genai.Client
	model  contentGenerator
}

func NewGeminiReasoningService(cfg *config.Config) (ReasoningService, error) {
	if cfg.Gemini.APIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set. Answer insights will use fallback text.")
		return &geminiReasoningService{}, nil
	}
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Gemini.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return &geminiReasoningService{client: client, model: client.GenerativeModel(cfg.Gemini.Model)}, nil
}

// Close releases the underlying Gemini client, if any.
func (s *geminiReasoningService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func buildInsightPrompt(req InsightRequest) string {
	var b strings.Builder
	b.WriteString("Role: You are a strict but fair private tutor.\n")
	b.WriteString("Task: Explain to the student why their answer was correct or incorrect.\n")
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Question: %q\n", req.QuestionText)
	fmt.Fprintf(&b, "- Student Answer: %q\n", req.SubmittedAnswer)
	fmt.Fprintf(&b, "- Correct Answer: %q\n", req.CorrectAnswer)
	fmt.Fprintf(&b, "- Explanation / Context: %q\n", req.Explanation)
	fmt.Fprintf(&b, "- Difficulty: %s\n", req.Difficulty)
	fmt.Fprintf(&b, "- Is Correct: %t\n\n", req.IsCorrect)
	b.WriteString("Instructions:\n")
	b.WriteString("1. If Correct: Validate their understanding. If it was a Hard question, praise their mastery. If Easy, keep it brief.\n")
	b.WriteString("2. If Incorrect:\n")
	b.WriteString("   - If Difficulty is EASY: Be firm. Tell them this is a critical gap they must fix.\n")
	b.WriteString("   - If Difficulty is HARD: Be constructive. Explain the nuance they missed.\n")
	b.WriteString("   - Use the provided 'Explanation' to give specific advice.\n")
	b.WriteString("   - Do NOT reveal the correct answer explicitly if not needed, focus on the *why*.\n")
	b.WriteString("3. Keep it under 2 sentences.\n")
	b.WriteString("4. Tone: Professional, Direct, Insightful.\n")
	return b.String()
}

func (s *geminiReasoningService) Explain(ctx context.Context, req InsightRequest) (string, error) {
	if s.model == nil {
		return unavailableInsight, nil
	}

	resp, err := s.model.GenerateContent(ctx, genai.Text(buildInsightPrompt(req)))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", errors.New("gemini returned no text content")
	}
	return out, nil
}
