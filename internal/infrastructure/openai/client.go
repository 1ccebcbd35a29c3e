package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
	"github.com/visitwise/visitwise/internal/infrastructure/llm"
)

type openAIClient struct {
	client   *goopenai.Client
	settings llm.Settings
	throttle *llm.Throttle
}

// Options for NewOpenAIClient; BaseURL targets OpenAI-compatible gateways
type Options struct {
	APIKey   string
	BaseURL  string
	Settings llm.Settings
	Throttle *llm.Throttle
}

// NewOpenAIClient chat-completion client
func NewOpenAIClient(opts Options) (repository.AIRepository, error) {
	if opts.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is empty")
	}

	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	throttle := opts.Throttle
	if throttle == nil {
		throttle = llm.DefaultThrottle()
	}

	return &openAIClient{
		client:   goopenai.NewClientWithConfig(cfg),
		settings: opts.Settings.WithDefaults(llm.DefaultOpenAIModel),
		throttle: throttle,
	}, nil
}

// GenerateReply sends [system, user] and returns the first choice
func (o *openAIClient) GenerateReply(ctx context.Context, prompt entity.Prompt) (string, error) {
	release, err := o.throttle.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var messages []goopenai.ChatCompletionMessage
	if prompt.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	resp, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       o.settings.Model,
		Messages:    messages,
		Temperature: wireTemperature(o.settings.Temperature),
		MaxTokens:   o.settings.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// wireTemperature the request field is omitempty, so zero would fall back to
// the server default of 1
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// Close nothing to release for the HTTP client
func (o *openAIClient) Close() error {
	return nil
}
