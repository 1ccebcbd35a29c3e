package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
	"github.com/visitwise/visitwise/internal/infrastructure/llm"
	"google.golang.org/api/option"
)

type geminiClient struct {
	client   *genai.Client
	settings llm.Settings
	throttle *llm.Throttle
}

// NewGeminiClient Gemini backed model client
func NewGeminiClient(ctx context.Context, apiKey string, settings llm.Settings) (repository.AIRepository, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiClient{
		client:   client,
		settings: settings.WithDefaults(llm.DefaultGeminiModel),
		throttle: llm.DefaultThrottle(),
	}, nil
}

// model configures a model for one call; the system prompt travels as SystemInstruction
func (g *geminiClient) model(system string) *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.settings.Model)
	model.SetTemperature(g.settings.Temperature)
	model.SetMaxOutputTokens(int32(g.settings.MaxTokens))
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	return model
}

// GenerateReply single-turn completion
func (g *geminiClient) GenerateReply(ctx context.Context, prompt entity.Prompt) (string, error) {
	release, err := g.throttle.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	resp, err := g.model(prompt.System).GenerateContent(ctx, genai.Text(prompt.User))
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response candidates")
	}

	return strings.TrimSpace(extractText(resp)), nil
}

// extractText concatenates the text parts of every candidate
func extractText(resp *genai.GenerateContentResponse) string {
	var result strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				result.WriteString(string(text))
			}
		}
	}
	return result.String()
}

// Close closes the client
func (g *geminiClient) Close() error {
	return g.client.Close()
}
