package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/clubllm/backend/internal/config"
)

type capturedRequest struct {
	Path    string
	Auth    string
	Referer string
	Title   string
	Body    map[string]any
}

func openRouterConfig(baseURL string) config.AIConfig {
	return config.AIConfig{
		Provider: config.ProviderOpenRouter,
		OpenRouter: config.OpenRouterConfig{
			APIKey:  "test-key",
			BaseURL: baseURL,
			Model:   config.DefaultOpenRouterModel,
			Referer: "http://localhost:8080",
			Title:   config.DefaultTitle,
		},
	}
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *capturedRequest, *atomic.Int32) {
	t.Helper()
	captured := &capturedRequest{}
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		captured.Path = r.URL.Path
		captured.Auth = r.Header.Get("Authorization")
		captured.Referer = r.Header.Get("HTTP-Referer")
		captured.Title = r.Header.Get("X-Title")
		_ = json.Unmarshal(raw, &captured.Body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, captured, calls
}

func writeCompletion(w http.ResponseWriter, contents ...string) {
	choices := make([]map[string]any, 0, len(contents))
	for i, content := range contents {
		choices = append(choices, map[string]any{
			"index":         i,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "gen-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   config.DefaultOpenRouterModel,
		"choices": choices,
	})
}

func TestOpenRouterCompleteSendsSingleTurn(t *testing.T) {
	srv, captured, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, "Hi there", "second choice is ignored")
	})

	client := NewOpenRouter(openRouterConfig(srv.URL))
	got, err := client.Complete(context.Background(), "Hello")
	require.NoError(t, err)
	require.Equal(t, "Hi there", got)

	require.Equal(t, "/chat/completions", captured.Path)
	require.Equal(t, "Bearer test-key", captured.Auth)
	require.Equal(t, "http://localhost:8080", captured.Referer)
	require.Equal(t, "ClubLLM Chat", captured.Title)
	require.Equal(t, config.DefaultOpenRouterModel, captured.Body["model"])

	messages, ok := captured.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	require.Equal(t, "user", msg["role"])
	require.Equal(t, "Hello", msg["content"])
}

func TestOpenRouterCompleteVerbatim(t *testing.T) {
	want := "  line one\n\nline two with trailing space \t"
	srv, _, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, want)
	})

	got, err := NewOpenRouter(openRouterConfig(srv.URL)).Complete(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestOpenRouterCompleteOptionalParams(t *testing.T) {
	srv, captured, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, "ok")
	})

	cfg := openRouterConfig(srv.URL)
	temperature := 0.25
	maxTokens := 128
	cfg.Temperature = &temperature
	cfg.MaxTokens = &maxTokens

	_, err := NewOpenRouter(cfg).Complete(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, 0.25, captured.Body["temperature"])
	require.Equal(t, float64(128), captured.Body["max_tokens"])
}

func TestOpenRouterCompleteNoChoices(t *testing.T) {
	srv, _, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w)
	})

	_, err := NewOpenRouter(openRouterConfig(srv.URL)).Complete(context.Background(), "x")
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestOpenRouterCompleteUpstreamErrorIsNotRetried(t *testing.T) {
	srv, _, calls := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"quota exceeded","code":"429"}}`)
	})

	_, err := NewOpenRouter(openRouterConfig(srv.URL)).Complete(context.Background(), "x")
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestOpenRouterCompleteMalformedBody(t *testing.T) {
	srv, _, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices": [`)
	})

	_, err := NewOpenRouter(openRouterConfig(srv.URL)).Complete(context.Background(), "x")
	require.Error(t, err)
}

func writeStream(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, delta := range deltas {
		chunk, _ := json.Marshal(map[string]any{
			"id":      "gen-1",
			"object":  "chat.completion.chunk",
			"created": 1700000000,
			"model":   config.DefaultOpenRouterModel,
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": delta}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestOpenRouterStreamComplete(t *testing.T) {
	srv, captured, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		writeStream(w, "Hi", " there")
	})

	var deltas []string
	full, err := NewOpenRouter(openRouterConfig(srv.URL)).StreamComplete(context.Background(), "Hello", func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "Hi there", full)
	require.Equal(t, []string{"Hi", " there"}, deltas)
	require.Equal(t, true, captured.Body["stream"])
}

func TestOpenRouterStreamCompleteCallbackError(t *testing.T) {
	srv, _, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		writeStream(w, "a", "b", "c")
	})

	stop := errors.New("client went away")
	_, err := NewOpenRouter(openRouterConfig(srv.URL)).StreamComplete(context.Background(), "x", func(string) error {
		return stop
	})
	require.ErrorIs(t, err, stop)
}

func TestOpenRouterStreamCompleteEmpty(t *testing.T) {
	srv, _, _ := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		writeStream(w)
	})

	_, err := NewOpenRouter(openRouterConfig(srv.URL)).StreamComplete(context.Background(), "x", func(string) error { return nil })
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestNewCompleterRequiresCredentials(t *testing.T) {
	cfg := openRouterConfig("http://127.0.0.1:0")
	cfg.OpenRouter.APIKey = ""

	_, err := NewCompleter(context.Background(), cfg)
	require.ErrorIs(t, err, ErrUnavailable)

	cfg.OpenRouter.APIKey = "k"
	completer, err := NewCompleter(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &OpenRouter{}, completer)
}
