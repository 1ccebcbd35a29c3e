package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollamaapi "github.com/ollama/ollama/api"
	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
	"github.com/visitwise/visitwise/internal/infrastructure/llm"
)

type ollamaClient struct {
	client   *ollamaapi.Client
	settings llm.Settings
	throttle *llm.Throttle
}

// NewOllamaClient client for a self-hosted Ollama server, host is "host:port" or a URL
func NewOllamaClient(host string, settings llm.Settings, httpClient *http.Client) (repository.AIRepository, error) {
	base, err := parseHost(host)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &ollamaClient{
		client:   ollamaapi.NewClient(base, httpClient),
		settings: settings.WithDefaults(llm.DefaultOllamaModel),
		throttle: llm.DefaultThrottle(),
	}, nil
}

func parseHost(host string) (*url.URL, error) {
	if host == "" {
		return nil, fmt.Errorf("OLLAMA_HOST is empty")
	}
	if !strings.Contains(host, "://") {
		return &url.URL{Scheme: "http", Host: host}, nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	return u, nil
}

// GenerateReply non-streaming chat call
func (o *ollamaClient) GenerateReply(ctx context.Context, prompt entity.Prompt) (string, error) {
	release, err := o.throttle.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var messages []ollamaapi.Message
	if prompt.System != "" {
		messages = append(messages, ollamaapi.Message{Role: "system", Content: prompt.System})
	}
	messages = append(messages, ollamaapi.Message{Role: "user", Content: prompt.User})

	stream := false
	builder := &strings.Builder{}
	err = o.client.Chat(ctx, &ollamaapi.ChatRequest{
		Model:    o.settings.Model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": o.settings.Temperature,
			"num_predict": o.settings.MaxTokens,
		},
	}, func(response ollamaapi.ChatResponse) error {
		builder.WriteString(response.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	return strings.TrimSpace(builder.String()), nil
}

// Close nothing to release
func (o *ollamaClient) Close() error {
	return nil
}
