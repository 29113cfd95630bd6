package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/clubllm/backend/internal/service/relay"
	"github.com/zhouzirui/clubllm/backend/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

type inboundFrame struct {
	Message string `json:"message"`
}

type responseFrame struct {
	Type     string `json:"type"`
	Response string `json:"response"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleWebSocket 每个入站帧独立转发，连接上不保留任何历史。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, MsgUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger := log.Ctx(ctx)
	logger.Info().Msg("[websocket] connection opened")

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("[websocket] read error")
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			frame.Message = ""
		}

		result := h.relay.Send(ctx, frame.Message)
		if err := writeResult(conn, result); err != nil {
			logger.Warn().Err(err).Msg("[websocket] write failed")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func writeResult(conn *websocket.Conn, result relay.Result) error {
	var frame any
	switch result.Outcome {
	case relay.OutcomeOK:
		frame = responseFrame{Type: "response", Response: result.Text}
	case relay.OutcomeEmptyMessage:
		frame = errorFrame{Type: "error", Error: relay.MsgEmptyMessage}
	default:
		frame = errorFrame{Type: "error", Error: relay.MsgUpstreamFailure}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

// pingLoop 定期发送ping消息。WriteControl 可与 WriteJSON 并发调用。
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// originChecker accepts same-host requests and the configured browser origins.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(origin, a) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
