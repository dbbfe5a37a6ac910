package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/lshigami/examcore/config"
	"github.com/lshigami/examcore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	prompt string
	resp   *genai.GenerateContentResponse
	err    error
}

func (g *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if len(parts) > 0 {
		if text, ok := parts[0].(genai.Text); ok {
			g.prompt = string(text)
		}
	}
	return g.resp, g.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

var sampleInsight = InsightRequest{
	QuestionText:    "Which layer routes packets?",
	SubmittedAnswer: "Transport",
	CorrectAnswer:   "Network",
	Explanation:     "Routing happens at layer 3.",
	Difficulty:      model.DifficultyEasy,
	IsCorrect:       false,
}

func TestExplain_WithoutAPIKeyUsesFallback(t *testing.T) {
	svc, err := NewGeminiReasoningService(&config.Config{})
	require.NoError(t, err)

	text, err := svc.Explain(context.Background(), sampleInsight)
	require.NoError(t, err)
	assert.Equal(t, unavailableInsight, text)
}

func TestExplain_UsesModelOutput(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("  Routing is a layer 3 concern.", " Revisit the OSI model.  ")}
	svc := &geminiReasoningService{model: gen}

	text, err := svc.Explain(context.Background(), sampleInsight)
	require.NoError(t, err)
	assert.Equal(t, "Routing is a layer 3 concern. Revisit the OSI model.", text)

	assert.Contains(t, gen.prompt, "strict but fair private tutor")
	assert.Contains(t, gen.prompt, `- Student Answer: "Transport"`)
	assert.Contains(t, gen.prompt, `- Correct Answer: "Network"`)
	assert.Contains(t, gen.prompt, "- Difficulty: EASY")
	assert.Contains(t, gen.prompt, "- Is Correct: false")
}

func TestExplain_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"call error", &fakeGenerator{err: errors.New("quota exceeded")}},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}},
		{"blank text", &fakeGenerator{resp: textResponse("   ")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &geminiReasoningService{model: tt.gen}
			text, err := svc.Explain(context.Background(), sampleInsight)
			assert.Error(t, err)
			assert.Empty(t, text)
		})
	}
}
