package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "No message provided")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":"No message provided"}`, rec.Body.String())
}

func TestSendSSEChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)

	require.NoError(t, SendSSEChunk(rec, rec, map[string]string{"event": "delta", "content": "Hi"}))
	require.NoError(t, SendSSEChunk(rec, rec, map[string]bool{"finished": true}))

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.True(t, rec.Flushed)
	require.Equal(t, "data: {\"content\":\"Hi\",\"event\":\"delta\"}\n\ndata: {\"finished\":true}\n\n", rec.Body.String())
}

func TestSendSSEChunkRejectsUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	require.Error(t, SendSSEChunk(rec, rec, map[string]any{"bad": make(chan int)}))
	require.Empty(t, rec.Body.String())
}
