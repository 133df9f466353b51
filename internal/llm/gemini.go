// Package llm adapts the Gemini API to the interview backend interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/logger"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

var _ interview.Backend = (*Generator)(nil)

// modelsClient is the subset of genai.Models used by Generator.
type modelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator sends single-turn prompts to Gemini and returns the text reply.
type Generator struct {
	models      modelsClient
	model       string
	temperature float32
	log         *zap.Logger
}

// GeneratorOpts holds parameters for creating a Generator.
type GeneratorOpts struct {
	APIKey      string
	Model       string  // defaults to gemini-2.5-flash
	Temperature float32 // zero leaves the model default
	Logger      *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, opts GeneratorOpts) (*Generator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm: gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return newGenerator(client.Models, opts), nil
}

func newGenerator(models modelsClient, opts GeneratorOpts) *Generator {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Generator{
		models:      models,
		model:       model,
		temperature: opts.Temperature,
		log:         logger.OrNop(opts.Logger),
	}
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

// Generate sends prompt and returns the concatenated text of the response.
// An empty response is an error.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("llm: prompt must not be empty")
	}

	var cfg *genai.GenerateContentConfig
	if g.temperature > 0 {
		t := g.temperature
		cfg = &genai.GenerateContentConfig{Temperature: &t}
	}

	g.log.Debug("gemini generate content request",
		zap.String("model", g.model),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)))

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("llm: generate content: %w", err)
	}

	var b strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				text := strings.TrimSpace(part.Text)
				if text == "" {
					continue
				}
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(text)
			}
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("llm: gemini api returned empty response")
	}
	g.log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(out)),
		zap.String("response_preview", logger.Truncate(out, 200)))
	return out, nil
}
