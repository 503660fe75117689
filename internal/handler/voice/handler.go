package voice

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/model/profile"
	voiceModel "github.com/zhouzirui/mamacare/backend/internal/model/voice"
	chatservice "github.com/zhouzirui/mamacare/backend/internal/service/chat"
	voicesvc "github.com/zhouzirui/mamacare/backend/internal/service/voice"
	"github.com/zhouzirui/mamacare/backend/pkg/utils"
)

// Handler 语音输入的HTTP处理器
type Handler struct {
	voiceSvc *voicesvc.Service
	chatSvc  *chatservice.Service
	profiles profile.Store
	logger   *zap.Logger
}

// New 创建语音处理器
func New(voiceSvc *voicesvc.Service, chatSvc *chatservice.Service, profiles profile.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		voiceSvc: voiceSvc,
		chatSvc:  chatSvc,
		profiles: profiles,
		logger:   logger,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/voice", h.handleStatus)
	r.Post("/sessions/{sessionID}/voice/start", h.handleStart)
	r.Post("/sessions/{sessionID}/voice/stop", h.handleStop)

	ws := NewWebSocketHandler(h)
	ws.RegisterWebSocketRoutes(r)
}

type startRequest struct {
	// AutoSubmit 为空时沿用助手档案的设置。
	AutoSubmit *bool `json:"autoSubmit,omitempty"`
}

// handleStart 开始模拟录音
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload startRequest
	if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		_ = utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_ = utils.RespondJSON(w, http.StatusOK, h.start(session, payload.AutoSubmit))
}

// handleStop 取消录音，未到达的识别结果被丢弃
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, h.stop(session.ID()))
}

// handleStatus 查询录音状态
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, h.voiceSvc.State(session.ID()))
}

func (h *Handler) start(session *chatservice.Session, override *bool) voiceModel.State {
	auto := h.autoSubmitFor(session.ProfileID())
	if override != nil {
		auto = *override
	}
	state := h.voiceSvc.Start(session, &auto)
	h.logger.Info("voice input started",
		zap.String("session_id", session.ID()),
		zap.Bool("auto_submit", state.AutoSubmit),
	)
	return state
}

func (h *Handler) stop(sessionID string) voiceModel.State {
	state, err := h.voiceSvc.Stop(sessionID)
	if errors.Is(err, voicesvc.ErrNotStarted) {
		return h.voiceSvc.State(sessionID)
	}
	return state
}

func (h *Handler) autoSubmitFor(profileID string) bool {
	if h.profiles == nil {
		return true
	}
	p, ok := h.profiles.FindByID(profileID)
	if !ok {
		return true
	}
	return p.AutoSubmit
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*chatservice.Session, bool) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			_ = utils.RespondError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		h.logger.Error("voice lookup failed", zap.Error(err))
		_ = utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return session, true
}
