package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/clubllm/backend/internal/service/relay"
	"github.com/zhouzirui/clubllm/backend/pkg/utils"
)

// MsgUnavailable is returned by every chat route when no completion backend is configured.
const MsgUnavailable = "chat unavailable"

const maxBodyBytes = 1 << 20

// Handler 聊天消息的HTTP处理器
type Handler struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
}

// New 创建聊天处理器。relay 为 nil 时所有路由返回 503。
func New(r *relay.Relay, allowedOrigins []string) *Handler {
	return &Handler{
		relay: r,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册聊天相关的路由，调用方负责挂在登录校验之后。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/stream", h.handleStream)
	r.Get("/ws/chat", h.handleWebSocket)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// handleChat relays one message and answers with the first completion.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	// 无法解析的请求体按空消息处理
	var payload chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		log.Ctx(r.Context()).Debug().Err(err).Msg("[chat] unparseable request body")
		payload.Message = ""
	}

	if h.unavailable(w, payload.Message) {
		return
	}

	result := h.relay.Send(r.Context(), payload.Message)
	switch result.Outcome {
	case relay.OutcomeOK:
		utils.RespondJSON(w, http.StatusOK, chatResponse{Response: result.Text})
	case relay.OutcomeEmptyMessage:
		utils.RespondError(w, http.StatusBadRequest, relay.MsgEmptyMessage)
	default:
		utils.RespondError(w, http.StatusInternalServerError, relay.MsgUpstreamFailure)
	}
}

// unavailable answers for a handler without a completion backend. An empty
// message is still a client error there.
func (h *Handler) unavailable(w http.ResponseWriter, message string) bool {
	if h.relay != nil {
		return false
	}
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, relay.MsgEmptyMessage)
	} else {
		utils.RespondError(w, http.StatusServiceUnavailable, MsgUnavailable)
	}
	return true
}

// TextEvent carries completion text on /chat/stream: "delta" chunks and the
// final "message". Content is always present, even when empty.
type TextEvent struct {
	Event   string `json:"event"`
	Content string `json:"content"`
}

// StatusEvent is the "end" or "error" event of /chat/stream.
type StatusEvent struct {
	Event    string `json:"event"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleStream relays one message and forwards the completion as Server-Sent Events.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if h.unavailable(w, message) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// 首个增量到达时才写出 SSE 头，之前的失败仍可用普通 JSON 错误返回
	started := false
	start := func() {
		if started {
			return
		}
		utils.SetupSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		started = true
	}

	ctx := r.Context()
	result := h.relay.Stream(ctx, message, func(delta string) error {
		start()
		return utils.SendSSEChunk(w, flusher, TextEvent{Event: "delta", Content: delta})
	})

	switch result.Outcome {
	case relay.OutcomeEmptyMessage:
		utils.RespondError(w, http.StatusBadRequest, relay.MsgEmptyMessage)
		return
	case relay.OutcomeUpstreamFailure:
		if !started {
			utils.RespondError(w, http.StatusInternalServerError, relay.MsgUpstreamFailure)
			return
		}
		if err := utils.SendSSEChunk(w, flusher, StatusEvent{Event: "error", Error: relay.MsgUpstreamFailure}); err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("[stream] client gone before error event")
		}
		return
	case relay.OutcomeDeliveryFailure:
		// 客户端已断开，relay 已记录
		return
	}

	start()
	for _, event := range []any{
		TextEvent{Event: "message", Content: result.Text},
		StatusEvent{Event: "end", Finished: true},
	} {
		if err := utils.SendSSEChunk(w, flusher, event); err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("[stream] client gone before completion")
			return
		}
	}
	log.Ctx(ctx).Debug().Int("chars", len(result.Text)).Msg("[stream] completed response")
}
