package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/clubllm/backend/internal/config"
)

// OpenRouter talks to any OpenAI-compatible chat completions endpoint.
type OpenRouter struct {
	client      openai.Client
	model       string
	temperature *float64
	maxTokens   *int
}

// NewOpenRouter builds a client with retries disabled; a failed call is
// reported once and never replayed.
func NewOpenRouter(cfg config.AIConfig, extra ...option.RequestOption) *OpenRouter {
	or := cfg.OpenRouter
	opts := []option.RequestOption{
		option.WithAPIKey(or.APIKey),
		option.WithMaxRetries(0),
	}
	if or.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(or.BaseURL))
	}
	if or.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", or.Referer))
	}
	if or.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", or.Title))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	opts = append(opts, extra...)

	return &OpenRouter{
		client:      openai.NewClient(opts...),
		model:       or.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (o *OpenRouter) params(message string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(message),
		},
	}
	if o.temperature != nil {
		params.Temperature = openai.Float(*o.temperature)
	}
	if o.maxTokens != nil {
		params.MaxTokens = openai.Int(int64(*o.maxTokens))
	}
	return params
}

// Complete returns choices[0].message.content verbatim.
func (o *OpenRouter) Complete(ctx context.Context, message string) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, o.params(message))
	if err != nil {
		return "", fmt.Errorf("openrouter chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}

	content := completion.Choices[0].Message.Content
	log.Ctx(ctx).Debug().
		Str("model", completion.Model).
		Int("length", len(content)).
		Msg("[ai] openrouter completion")
	return content, nil
}

// StreamComplete streams choices[0] deltas.
func (o *OpenRouter) StreamComplete(ctx context.Context, message string, onDelta func(string) error) (string, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(message))
	defer stream.Close()

	var (
		builder strings.Builder
		chunks  int
	)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		chunks++
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		builder.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return "", err
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("openrouter chat stream: %w", err)
	}
	if chunks == 0 {
		return "", ErrNoChoices
	}
	return builder.String(), nil
}
