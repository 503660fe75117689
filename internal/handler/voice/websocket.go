package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	voiceModel "github.com/zhouzirui/mamacare/backend/internal/model/voice"
	chatservice "github.com/zhouzirui/mamacare/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler 会话的双向WebSocket通道：推送会话事件与语音状态，接收文本与语音指令
type WebSocketHandler struct {
	h        *Handler
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(h *Handler) *WebSocketHandler {
	return &WebSocketHandler{
		h: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (ws *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", ws.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息，用于 text 与 input
type TextMessage struct {
	Text string `json:"text"`
}

// VoiceCommand 语音指令
type VoiceCommand struct {
	Action     string `json:"action"`
	AutoSubmit *bool  `json:"autoSubmit,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

const (
	msgConnected = "connected"
	msgAck       = "ack"
	msgVoice     = "voice"
	msgError     = "error"
)

// wsConn 串行化写入，gorilla 连接同一时刻只允许一个写者
type wsConn struct {
	conn      *websocket.Conn
	sessionID string
	logger    *zap.Logger
	mu        sync.Mutex
}

func (c *wsConn) send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		c.logger.Debug("websocket write failed", zap.String("type", msgType), zap.Error(err))
	}
	return err
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *wsConn) sendError(message string) {
	_ = c.send(msgError, map[string]string{"message": message})
}

// handleWebSocket 处理WebSocket连接
func (ws *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := ws.h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := ws.h.logger.With(zap.String("session_id", session.ID()))
	logger.Info("websocket connected")
	defer logger.Info("websocket disconnected")

	c := &wsConn{conn: conn, sessionID: session.ID(), logger: logger}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := session.Subscribe(64)
	defer unsubscribe()
	unwatch := ws.h.voiceSvc.Watch(session, func(state voiceModel.State) {
		_ = c.send(msgVoice, state)
	})
	defer unwatch()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	if err := c.send(msgConnected, map[string]any{
		"session": session.Snapshot(),
		"voice":   ws.h.voiceSvc.State(session.ID()),
	}); err != nil {
		return
	}

	go ws.forwardEvents(ctx, cancel, c, events)
	go ws.pingLoop(ctx, c)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		ws.handleMessage(c, session, &msg)
	}
}

// forwardEvents 把会话事件转发给客户端，会话关闭后结束连接
func (ws *WebSocketHandler) forwardEvents(ctx context.Context, cancel context.CancelFunc, c *wsConn, events <-chan chatservice.Event) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.mu.Lock()
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeTimeout))
				c.mu.Unlock()
				_ = c.conn.Close()
				return
			}
			if err := c.send(string(ev.Kind), ev); err != nil {
				return
			}
		}
	}
}

func (ws *WebSocketHandler) handleMessage(c *wsConn, session *chatservice.Session, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var payload TextMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid text payload")
			return
		}
		_ = c.send(msgAck, map[string]bool{"accepted": session.Submit(payload.Text)})
	case "input":
		var payload TextMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid input payload")
			return
		}
		session.SetInput(payload.Text)
	case "voice":
		var cmd VoiceCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			c.sendError("invalid voice payload")
			return
		}
		switch cmd.Action {
		case "start":
			ws.h.start(session, cmd.AutoSubmit)
		case "stop":
			ws.h.stop(session.ID())
		default:
			c.sendError("unknown voice action: " + cmd.Action)
		}
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// pingLoop 定期发送ping消息
func (ws *WebSocketHandler) pingLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
