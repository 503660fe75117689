package stream

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/mamacare/backend/internal/service/chat"
	"github.com/zhouzirui/mamacare/backend/pkg/utils"
)

const (
	// DefaultHeartbeat keeps idle proxies from closing the stream.
	DefaultHeartbeat = 15 * time.Second

	eventSnapshot  = "snapshot"
	subscriberSize = 64
)

// Handler pushes session state changes to the browser via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	heartbeat time.Duration
	logger    *zap.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:   chatSvc,
		heartbeat: DefaultHeartbeat,
		logger:    logger,
	}
}

// RegisterRoutes registers the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/stream", h.handleStream)
}

// handleStream sends a snapshot, then every session event until the client
// disconnects or the session is closed.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			_ = utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		_ = utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	events, cancel := session.Subscribe(subscriberSize)
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Info("sse stream opened")
	defer logger.Info("sse stream closed")

	if err := utils.SendSSEEvent(w, flusher, eventSnapshot, session.Snapshot()); err != nil {
		logger.Warn("sse write failed", zap.Error(err))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Kind), ev); err != nil {
				logger.Warn("sse write failed", zap.Error(err))
				return
			}
			if ev.Kind == chatService.EventClosed {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				logger.Warn("sse heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}
