package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

// Ark runs single-turn completions through an eino chain ending in a chat model.
type Ark struct {
	model string
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArk compiles the template -> chat model chain.
func NewArk(ctx context.Context, chatModel model.ChatModel, modelName string) (*Ark, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{message}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Ark{model: modelName, chain: runnable}, nil
}

// Complete returns the model's text verbatim.
func (a *Ark) Complete(ctx context.Context, message string) (string, error) {
	response, err := a.chain.Invoke(ctx, map[string]any{"message": message})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", ErrNoChoices
	}

	log.Ctx(ctx).Debug().Str("model", a.model).Int("length", len(response.Content)).Msg("[ai] ark completion")
	return response.Content, nil
}

// StreamComplete forwards each chunk's content to onDelta.
func (a *Ark) StreamComplete(ctx context.Context, message string, onDelta func(string) error) (string, error) {
	stream, err := a.chain.Stream(ctx, map[string]any{"message": message})
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		builder.WriteString(chunk.Content)
		if err := onDelta(chunk.Content); err != nil {
			return "", err
		}
	}
	return builder.String(), nil
}
