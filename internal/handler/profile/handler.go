package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mamacare/backend/internal/model/profile"
	"github.com/zhouzirui/mamacare/backend/pkg/utils"
)

// Handler 助手档案的HTTP处理器
type Handler struct {
	profiles profile.Store
}

// New 创建档案处理器
func New(profiles profile.Store) *Handler {
	return &Handler{
		profiles: profiles,
	}
}

// RegisterRoutes 注册档案相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles", h.handleListProfiles)
	r.Get("/profiles/{profileID}", h.handleGetProfile)
}

// handleListProfiles 列出所有助手档案
func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	_ = utils.RespondJSON(w, http.StatusOK, h.profiles.List())
}

// handleGetProfile 查询单个助手档案
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profiles.FindByID(chi.URLParam(r, "profileID"))
	if !ok {
		_ = utils.RespondError(w, http.StatusNotFound, "profile not found")
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, p)
}
