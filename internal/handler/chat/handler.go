package chat

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/mamacare/backend/internal/service/chat"
	"github.com/zhouzirui/mamacare/backend/pkg/utils"
)

// SessionCloser 在会话关闭时释放附属资源（例如语音输入）。
type SessionCloser interface {
	Forget(sessionID string)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	closers []SessionCloser
	logger  *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *zap.Logger, closers ...SessionCloser) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		closers: closers,
		logger:  logger,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
	r.Post("/sessions/{sessionID}/messages", h.handleSubmitMessage)
	r.Put("/sessions/{sessionID}/input", h.handleSetInput)
}

type createSessionRequest struct {
	ProfileID string `json:"profileId"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		_ = utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.ProfileID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, chatService.ErrProfileRequired):
			status = http.StatusBadRequest
		case errors.Is(err, chatService.ErrProfileNotFound):
			status = http.StatusNotFound
		}
		_ = utils.RespondError(w, status, err.Error())
		return
	}

	_ = utils.RespondJSON(w, http.StatusCreated, session.Snapshot())
}

// handleGetSession 返回会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

// handleDeleteSession 关闭会话，尚未完成的回复会被丢弃
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.chatSvc.CloseSession(r.Context(), sessionID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	for _, closer := range h.closers {
		closer.Forget(sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

type textRequest struct {
	Text string `json:"text"`
}

type submitResponse struct {
	Accepted bool `json:"accepted"`
}

// handleSubmitMessage 提交用户消息，回复异步到达
func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload textRequest
	if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		_ = utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted := session.Submit(payload.Text)
	if !accepted {
		h.logger.Debug("submission ignored", zap.String("session_id", session.ID()))
	}
	_ = utils.RespondJSON(w, http.StatusAccepted, submitResponse{Accepted: accepted})
}

// handleSetInput 更新输入框内容
func (h *Handler) handleSetInput(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload textRequest
	if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		_ = utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session.SetInput(payload.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*chatService.Session, bool) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrSessionNotFound) {
		_ = utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("chat request failed", zap.Error(err))
	_ = utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
