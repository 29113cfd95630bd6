package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/clubllm/backend/internal/config"
)

var (
	ErrNoChoices   = errors.New("completion returned no choices")
	ErrUnavailable = errors.New("completion backend not configured")
)

// Completer sends one user message as a single-turn conversation and returns
// the first completion's text.
type Completer interface {
	Complete(ctx context.Context, message string) (string, error)
	// StreamComplete calls onDelta for every text chunk and returns the full text.
	StreamComplete(ctx context.Context, message string, onDelta func(string) error) (string, error)
}

// NewCompleter builds the backend selected by cfg.Provider.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: provider %q is missing credentials", ErrUnavailable, cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		ark, err := NewArk(ctx, chatModel, cfg.Ark.Model)
		if err != nil {
			return nil, err
		}
		return ark, nil
	case config.ProviderOpenRouter:
		return NewOpenRouter(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnavailable, cfg.Provider)
	}
}
